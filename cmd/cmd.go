package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/pdfchat/pkg/assistant"
)

var preloadFiles []string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the indexed documents",
	Long: `Retrieves the passages most similar to the question and asks the
configured provider to answer from them. Use --file to index documents first,
which is required with the in-memory store.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with your documents interactively",
	Long: `Starts an interactive conversation. Earlier turns are replayed to the
provider as history. Type /reset to clear the conversation and exit to quit.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	for _, c := range []*cobra.Command{askCmd, chatCmd} {
		c.Flags().StringSliceVarP(&preloadFiles, "file", "f", nil, "PDF files to index before answering")
		rootCmd.AddCommand(c)
	}
}

func getProgressBar(out io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(out io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// openApp wires the pipeline and indexes any --file documents.
func openApp(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd.Context(), config)
	if err != nil {
		return nil, err
	}
	if len(preloadFiles) > 0 {
		if _, err := ingestFiles(cmd.Context(), cmd.ErrOrStderr(), a, preloadFiles); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return answer(cmd.Context(), cmd, a, assistant.NewSession(), args[0])
}

// answer prints the reply to one question. Generation failures are returned.
func answer(ctx context.Context, cmd *cobra.Command, a *app, session *assistant.Session, question string) error {
	spinner := getSpinner(cmd.ErrOrStderr(), "Searching documents...")
	ans, err := a.assistant.Answer(ctx, session, question)
	spinner.Finish()
	fmt.Fprint(cmd.ErrOrStderr(), "\r")
	if err != nil {
		return err
	}

	color.New(color.FgCyan).Fprint(cmd.OutOrStdout(), "Assistant: ")
	fmt.Fprintln(cmd.OutOrStdout(), a.assistant.FormatAnswer(ans))
	return nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	userPrompt := color.New(color.FgGreen)
	color.New(color.FgCyan).Fprintln(out, "\nChat with your documents (type '/reset' to start over, 'exit' to quit)")

	session := assistant.NewSession()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/reset":
			session.Reset()
			color.New(color.FgYellow).Fprintln(out, "Conversation cleared.")
			continue
		}

		// A failed answer is shown and the conversation goes on.
		if err := answer(cmd.Context(), cmd, a, session, query); err != nil {
			color.New(color.FgRed).Fprintf(out, "Error: %v\n", err)
		}
		if cmd.Context().Err() != nil {
			return nil
		}
	}
	return scanner.Err()
}
