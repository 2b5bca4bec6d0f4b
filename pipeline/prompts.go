package pipeline

import (
	"embed"
	"fmt"
)

//go:embed prompts/*.md
var promptFiles embed.FS

// loadPrompt returns an embedded prompt template by name. A missing
// prompt is a build defect, so it panics rather than erroring.
func loadPrompt(name string) string {
	data, err := promptFiles.ReadFile("prompts/" + name + ".md")
	if err != nil {
		panic(fmt.Sprintf("missing embedded prompt %q: %v", name, err))
	}
	return string(data)
}

// voicePrefix is prepended to system prompts of writing steps so all
// generated prose shares one register.
func voicePrefix() string {
	return loadPrompt("voice") + "\n\n---\n\n"
}
