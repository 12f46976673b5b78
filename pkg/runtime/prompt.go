package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/prismworks/prism/pkg/memory"
	"github.com/prismworks/prism/pkg/tool"
)

// autonomySuffix is appended to every assembled system prompt. It
// establishes the step-by-step working style expected from agents.
const autonomySuffix = `# Working Style

Work autonomously and step by step. Break the request into concrete
steps, state assumptions explicitly, and complete the task without
asking for confirmation unless something is genuinely ambiguous. When
you acquire a durable new capability from this interaction, declare it
on its own line as: LEARNED_SKILL: {"name": "...", "description": "..."}`

// assembleSystemPrompt builds the full system prompt for one execute
// call: identity, retrieved memories, learned skills, enabled
// capabilities, selected tools, and the caller-supplied context.
func assembleSystemPrompt(agent *Agent, fragments []memory.Fragment, tools []tool.Definition, callContext map[string]interface{}) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s.", agent.Name)
	if agent.Description != "" {
		fmt.Fprintf(&b, " %s", agent.Description)
	}
	b.WriteString("\n")

	if agent.SystemPrompt != "" {
		b.WriteString("\n")
		b.WriteString(agent.SystemPrompt)
		b.WriteString("\n")
	}

	if len(fragments) > 0 {
		b.WriteString("\n# Relevant Context from Memory\n\n")
		for i, f := range fragments {
			fmt.Fprintf(&b, "## Memory %d (relevance: %.2f)\n%s\n\n", i+1, f.Score, f.Content)
		}
	}

	if skills := agent.Memory.Skills.All(); len(skills) > 0 {
		b.WriteString("\n# Learned Skills\n\n")
		for _, s := range skills {
			fmt.Fprintf(&b, "- %s: %s (used %d times)\n", s.Name, s.Description, s.UsageCount)
		}
	}

	if enabled := enabledCapabilities(agent.Capabilities); len(enabled) > 0 {
		b.WriteString("\n# Capabilities\n\n")
		for _, c := range enabled {
			fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		}
	}

	if len(tools) > 0 {
		b.WriteString("\n# Available Tools\n\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}

	if len(callContext) > 0 {
		if serialized, err := json.MarshalIndent(callContext, "", "  "); err == nil {
			b.WriteString("\n# Request Context\n\n")
			b.Write(serialized)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(autonomySuffix)
	return b.String()
}

func enabledCapabilities(caps []Capability) []Capability {
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}
