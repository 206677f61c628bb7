package announce

import (
	"strings"

	"github.com/example/twist-judge/services/judge/internal/content"
)

// Quote renders body as a block quote that starts on a new line.
func Quote(body string) string {
	return strings.ReplaceAll("\n"+body, "\n", "\n> ")
}

// RenderWinner fills {{author}}, {{permalink}} and {{body}} from the winning
// comment. Other placeholders are left as they are.
func RenderWinner(tmpl string, winner content.Comment) string {
	return strings.NewReplacer(
		"{{author}}", winner.AuthorName,
		"{{permalink}}", winner.Permalink,
		"{{body}}", Quote(winner.Body),
	).Replace(tmpl)
}

// RenderPending fills only {{author}}, with the post author's name.
func RenderPending(tmpl string, postAuthor string) string {
	return strings.ReplaceAll(tmpl, "{{author}}", postAuthor)
}
