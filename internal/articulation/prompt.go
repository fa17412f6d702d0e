// Package articulation translates between free text and commands: it builds the prompts
// sent to the AI planning service, extracts commands from the plan it returns, and turns
// execution results back into a human-readable report.
package articulation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gridnerd/internal/perception"
	"gridnerd/internal/tools"
)

// =============================================================================
// PROMPT BUILDER - category instructions, spreadsheet context, user query
// =============================================================================

// ContextHeader introduces the serialized spreadsheet context in every prompt.
const ContextHeader = "Spreadsheet Context:"

var instructions = map[perception.Category]string{
	perception.CategoryGeneral: `You are an autonomous spreadsheet assistant that performs tasks directly in the user's workbook.
You answer spreadsheet questions and also carry out the work on the user's behalf.
Analyze the request and decide which spreadsheet actions to take.
For each task, state the specific commands to execute and explain what you are doing.
When you create formulas or automate tasks, explain how they work in plain language.
If the user provides an image, use it to understand the content, layout, data or error messages it shows.`,

	perception.CategoryFormula: `You are an autonomous spreadsheet formula expert that implements formulas for the user.
Based on the description, create the appropriate formula and apply it to the target cells.
Explain the formula's purpose, structure and logic before applying it.
Always name the target cell or range and give a clear implementation plan.
If an image of a sheet or formula is provided, use it to understand the structure, data relationships or formula errors to address.`,

	perception.CategoryAnalysis: `You are an autonomous spreadsheet data analyst.
Examine the data provided and identify patterns, anomalies and insights.
Generate suitable charts and summary statistics, and format data to highlight important findings.
Present the analysis in an easy-to-understand way and explain which actions you are taking.
If an image of data or charts is provided, use it to understand the data structure and visible trends.`,

	perception.CategoryTroubleshooting: `You are an autonomous spreadsheet troubleshooter that finds and fixes problems.
Diagnose problems in formulas, data structures or formatting.
Correct errors when possible and explain the solution.
For complex issues, give step-by-step repair instructions and implement them.
If an image showing an error is provided, identify the error type, its cause and the most appropriate fix.`,

	perception.CategoryAutomation: `You are an autonomous spreadsheet automation specialist.
Analyze the workflow the user describes and implement an automation for it.
Use formulas, bulk data writes and data transformations to remove repetitive work.
Keep the sheet structure efficient and explain your approach.
If an image of a workflow or sheet layout is provided, use it to find opportunities for automation.`,
}

// Instructions returns the instruction block for a category, falling back to general.
func Instructions(category perception.Category) string {
	if text, ok := instructions[category]; ok {
		return text
	}
	return instructions[perception.CategoryGeneral]
}

// BuildPrompt assembles the question-answering prompt: instructions, context section, query.
// It has no side effects. An empty context still produces the context header.
func BuildPrompt(query string, category perception.Category, ctx map[string]any) string {
	var sb strings.Builder
	sb.WriteString(Instructions(category))
	sb.WriteString("\n\n")
	writeContext(&sb, ctx)
	sb.WriteString("User Query: ")
	sb.WriteString(query)
	return sb.String()
}

// BuildActionPrompt assembles the planning prompt. It asks for an explanation, the
// commands as fenced JSON blocks, and the expected outcome.
func BuildActionPrompt(query string, category perception.Category, ctx map[string]any) string {
	var sb strings.Builder
	sb.WriteString(Instructions(category))
	sb.WriteString("\n\n")
	sb.WriteString("You need to extract actionable spreadsheet commands from user requests.\n")
	sb.WriteString("For each request, provide:\n")
	sb.WriteString("1. A brief explanation of what will be done, on a line starting with \"Explanation:\"\n")
	sb.WriteString("2. A list of specific spreadsheet commands to execute\n")
	sb.WriteString("3. The expected outcome\n\n")
	sb.WriteString("Write each command as a JSON object with a \"type\" field inside a ```json fenced block.\n")
	sb.WriteString("A block may also hold a JSON array of such objects. Available commands:\n")
	writeCommandCatalog(&sb)
	sb.WriteString("\n")
	writeContext(&sb, ctx)
	sb.WriteString("User Request: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPlease create an action plan with commands formatted as JSON that can be executed directly in the spreadsheet.")
	return sb.String()
}

func writeCommandCatalog(sb *strings.Builder) {
	for _, s := range tools.Schemas() {
		var optional []string
		for name := range s.Properties {
			if !containsString(s.Required, name) {
				optional = append(optional, name)
			}
		}
		sort.Strings(optional)

		fmt.Fprintf(sb, "- %s (required: %s", s.Kind, strings.Join(s.Required, ", "))
		if len(optional) > 0 {
			fmt.Fprintf(sb, "; optional: %s", strings.Join(optional, ", "))
		}
		fmt.Fprintf(sb, "): %s\n", s.Description)
	}
}

// writeContext renders the context as indented JSON. encoding/json sorts map keys,
// so the rendering is stable across calls.
func writeContext(sb *strings.Builder, ctx map[string]any) {
	sb.WriteString(ContextHeader)
	sb.WriteString("\n")
	if len(ctx) > 0 {
		sb.WriteString(RenderContext(ctx))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

// RenderContext serializes ctx for a prompt. Values JSON cannot encode are
// rendered with %v.
func RenderContext(ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	data, err := json.MarshalIndent(ctx, "", "  ")
	if err == nil {
		return string(data)
	}

	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, ctx[k]))
	}
	return strings.Join(lines, "\n")
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
