package main

import (
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/studysync"
)

var (
	helpHeaderStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	helpCmdStyle    = lipgloss.NewStyle().Foreground(colorPrimaryLight)
)

// Command groups shown on the root help page.
var helpGroups = []*cobra.Group{
	{ID: "records", Title: "Records:"},
	{ID: "sync", Title: "Sync and transfer:"},
	{ID: "admin", Title: "Setup and diagnostics:"},
}

var commandGroup = map[string]string{
	"show":      "records",
	"save-item": "records",
	"remove":    "records",
	"sync":      "sync",
	"refresh":   "sync",
	"export":    "sync",
	"import":    "sync",
	"status":    "admin",
	"profiles":  "admin",
	"mcp":       "admin",
	"version":   "admin",
}

func styled(style lipgloss.Style) func(string) string {
	return func(s string) string {
		if isTTY() {
			return style.Render(s)
		}
		return s
	}
}

var helpTemplateFuncs = template.FuncMap{
	"header": styled(helpHeaderStyle),
	"cmd":    styled(helpCmdStyle),
	"muted":  styled(mutedStyle),
	// takesCollection reports whether the command's first argument names a
	// collection, or whether it is the root command.
	"takesCollection": func(c *cobra.Command) bool {
		return !c.HasParent() || strings.Contains(c.Use, "<collection>")
	},
	"collections": func() string {
		return strings.Join(studysync.CollectionNames(), ", ")
	},
}

const helpTemplate = `{{with .Long}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{header "Usage:"}}
  {{cmd .UseLine}}{{if .HasAvailableSubCommands}} {{muted "[command]"}}{{end}}

{{end}}{{if .HasExample}}{{header "Examples:"}}
{{.Example}}

{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{range $group := .Groups}}{{header $group.Title}}
{{range $cmds}}{{if and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help"))}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{if not .AllChildCommandsHaveGroup}}{{header "Other Commands:"}}
{{range $cmds}}{{if and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help"))}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}
{{end}}{{end}}{{if takesCollection .}}{{header "Collections:"}}
  {{collections}}

{{end}}{{if .HasAvailableLocalFlags}}{{header "Flags:"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}{{header "Global Flags:"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableSubCommands}}{{muted "Use"}} {{cmd (printf "%s [command] --help" .CommandPath)}} {{muted "for more information."}}
{{end}}`

// initHelp groups the root's commands and installs the styled help template
// on every command. Calling it again is harmless.
func initHelp(root *cobra.Command) {
	for name, fn := range helpTemplateFuncs {
		cobra.AddTemplateFunc(name, fn)
	}
	for _, g := range helpGroups {
		if !root.ContainsGroup(g.ID) {
			root.AddGroup(g)
		}
	}
	for _, sub := range root.Commands() {
		if id, ok := commandGroup[sub.Name()]; ok {
			sub.GroupID = id
		}
	}
	root.SetHelpCommandGroupID("admin")
	root.SetCompletionCommandGroupID("admin")
	applyHelpTemplate(root)
}

func applyHelpTemplate(cmd *cobra.Command) {
	cmd.SetHelpTemplate(helpTemplate)
	for _, sub := range cmd.Commands() {
		applyHelpTemplate(sub)
	}
}
