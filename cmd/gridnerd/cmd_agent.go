package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gridnerd/internal/articulation"
	"gridnerd/internal/perception"
	"gridnerd/internal/tools"
	"gridnerd/internal/ux"

	"github.com/spf13/cobra"
)

var (
	imagePath    string
	contextPairs map[string]string
)

// runCmd plans and executes a task against the workbook
var runCmd = &cobra.Command{
	Use:   "run [request]",
	Short: "Plan and execute a spreadsheet task",
	Long: `Sends the request and the workbook context to the AI service, extracts the
spreadsheet commands from its plan, and executes them in order.

Example:
  gridnerd run "put the total of B2:B9 in B10 and bold the header row"
  gridnerd run --context region=EMEA "summarize sales by region"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

// askCmd answers a question without changing the workbook
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a spreadsheet question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  askQuestion,
}

// execCmd executes one command given as JSON
var execCmd = &cobra.Command{
	Use:   "exec [command-json]",
	Short: "Execute a single spreadsheet command",
	Long: `Validates and executes one command.

Example:
  gridnerd exec '{"type":"insert_formula","cell":"B10","formula":"=SUM(B2:B9)"}'`,
	Args: cobra.ExactArgs(1),
	RunE: execCommand,
}

// extractCmd runs the extraction pipeline offline
var extractCmd = &cobra.Command{
	Use:   "extract [file|-]",
	Short: "Extract commands from a saved plan without executing them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  extractPlan,
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect to the workbook and show its status",
	RunE:  connectWorkbook,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show service health",
	RunE:  showHealth,
}

func init() {
	for _, c := range []*cobra.Command{runCmd, askCmd} {
		c.Flags().StringVar(&imagePath, "image", "", "Attach an image (screenshot of the sheet, chart, ...)")
	}
	runCmd.Flags().StringToStringVar(&contextPairs, "context", nil, "Extra context as key=value (repeatable)")
	askCmd.Flags().StringToStringVar(&contextPairs, "context", nil, "Extra context as key=value (repeatable)")
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	image, err := loadImage()
	if err != nil {
		return err
	}
	a, err := newAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	overrides := contextOverrides(contextPairs)
	report := a.RunAutonomousQuery(ctx, joinArgs(args), overrides, image)

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, report); err != nil {
			return err
		}
	} else {
		styles := ux.DefaultStyles()
		fmt.Fprint(out, ux.RenderContextKeys(styles, overrides))
		fmt.Fprint(out, ux.RenderReport(styles, report))
	}
	if report.Status == articulation.ReportError {
		return fmt.Errorf("request failed: %s", report.Message)
	}
	return nil
}

func askQuestion(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	image, err := loadImage()
	if err != nil {
		return err
	}
	a, err := newAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	// Best effort: answers use the workbook context when it is reachable.
	a.Connect(ctx)

	answer, err := a.AnswerQuery(ctx, joinArgs(args), contextOverrides(contextPairs), image)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{"response": answer})
	}
	fmt.Fprint(out, ux.RenderMarkdown(answer, 100))
	return nil
}

func execCommand(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	var command tools.Command
	if err := json.Unmarshal([]byte(args[0]), &command); err != nil {
		return fmt.Errorf("invalid command JSON: %w", err)
	}
	a, err := newAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.ExecuteCommand(ctx, command)
	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, res); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, ux.RenderResult(ux.DefaultStyles(), res))
	}
	if !res.Succeeded() {
		return fmt.Errorf("command failed: %s", res.Error)
	}
	return nil
}

func extractPlan(cmd *cobra.Command, args []string) error {
	plan, err := readPlan(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	ext := articulation.NewPipeline().Extract(plan)

	out := cmd.OutOrStdout()
	if jsonOutput {
		commands := ext.Commands
		if commands == nil {
			commands = []tools.Command{}
		}
		return printJSON(out, map[string]any{"tier": ext.Tier, "commands": commands})
	}
	fmt.Fprint(out, ux.RenderExtraction(ux.DefaultStyles(), ext))
	return nil
}

func connectWorkbook(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	status := a.Connect(ctx)

	out := cmd.OutOrStdout()
	if jsonOutput {
		if err := printJSON(out, map[string]any{"status": status}); err != nil {
			return err
		}
	} else {
		fmt.Fprint(out, ux.RenderConnection(ux.DefaultStyles(), status))
	}
	if !status.Usable() {
		return fmt.Errorf("connection failed: %s", status.Message)
	}
	return nil
}

func showHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := newAgent(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	h := a.CheckHealth(ctx)

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, h)
	}
	fmt.Fprint(out, ux.RenderHealth(ux.DefaultStyles(), h))
	return nil
}

func loadImage() (*perception.Image, error) {
	if imagePath == "" {
		return nil, nil
	}
	return perception.LoadImage(imagePath)
}

func contextOverrides(pairs map[string]string) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]any, len(pairs))
	for k, v := range pairs {
		out[strings.TrimSpace(k)] = v
	}
	return out
}

// readPlan reads a plan from a file argument, or stdin when the argument is "-" or absent.
func readPlan(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read plan: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read plan: %w", err)
	}
	return string(data), nil
}
