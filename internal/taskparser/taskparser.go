// Package taskparser extracts @@@task blocks from agent plan text into
// structured model.Task records, per spec §4.4. The parser never fails:
// malformed or missing sections simply yield empty fields.
package taskparser

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kandev/wavecoord/internal/model"
)

var blockPattern = regexp.MustCompile(`(?s)@@@task\s*\n(.*?)@@@`)

var sectionHeader = regexp.MustCompile(`(?m)^##\s+(.+?)\s*$`)

// Parse extracts every @@@task ... @@@ block from planText and returns the
// resulting Task records, each with a fresh id, PENDING status, and
// createdAt = updatedAt = now.
func Parse(planText string) []*model.Task {
	matches := blockPattern.FindAllStringSubmatch(planText, -1)
	tasks := make([]*model.Task, 0, len(matches))
	for _, m := range matches {
		tasks = append(tasks, parseBlock(m[1]))
	}
	return tasks
}

func parseBlock(body string) *model.Task {
	now := time.Now()
	t := &model.Task{
		ID:        uuid.NewString(),
		Title:     "Untitled Task",
		Status:    model.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	lines := strings.Split(body, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			title := strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			if title != "" {
				t.Title = title
			}
			break
		}
	}

	t.Objective = extractSection(body, "Objective")
	t.Scope = extractBulletList(body, "Scope")
	t.AcceptanceCriteria = extractBulletList(body, "Definition of Done")
	t.VerificationCommands = extractBulletList(body, "Verification")

	return t
}

// extractSection returns the raw text of section `## <name>` up to the next
// `## ` header or end of body.
func extractSection(body, name string) string {
	start, end, ok := sectionBounds(body, name)
	if !ok {
		return ""
	}
	return strings.TrimSpace(body[start:end])
}

// extractBulletList returns the trimmed `- ` bullet lines within section
// `## <name>`.
func extractBulletList(body, name string) []string {
	start, end, ok := sectionBounds(body, name)
	if !ok {
		return nil
	}
	section := body[start:end]

	var out []string
	for _, line := range strings.Split(section, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") {
			item := strings.TrimSpace(strings.TrimPrefix(trimmed, "-"))
			if item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

// sectionBounds locates the body range owned by `## <name>`, ending at the
// next `## ` header (any name) or end of string.
func sectionBounds(body, name string) (start, end int, ok bool) {
	headers := sectionHeader.FindAllStringSubmatchIndex(body, -1)
	for i, h := range headers {
		headerName := strings.TrimSpace(body[h[2]:h[3]])
		if !strings.EqualFold(headerName, name) {
			continue
		}
		start = h[1]
		if i+1 < len(headers) {
			end = headers[i+1][0]
		} else {
			end = len(body)
		}
		return start, end, true
	}
	return 0, 0, false
}
