package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"github.com/zhouzirui/promptdesk/internal/config"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
	"github.com/zhouzirui/promptdesk/internal/service/ai"
	chatService "github.com/zhouzirui/promptdesk/internal/service/chat"
	"github.com/zhouzirui/promptdesk/internal/tui"
	"github.com/zhouzirui/promptdesk/pkg/logger"
)

// cmdAsk sends a single prompt and prints the reply.
type cmdAsk struct {
	Markdown bool   `help:"Render the reply as markdown for the terminal."`
	Prompt   string `arg:"" optional:"" help:"Prompt to send; read from stdin when omitted."`
}

type cmdTui struct {
	Plain bool `help:"Show replies without markdown rendering."`
}

type cmdModels struct{}

type cliArgs struct {
	Model  string    `short:"m" help:"Model to use; defaults to the first model of the provider."`
	APIKey string    `name:"api-key" short:"k" help:"API key; defaults to the provider's environment variable."`
	Debug  bool      `short:"d" help:"Log debug information."`
	Ask    cmdAsk    `cmd:"" help:"Send one prompt and print the reply."`
	Tui    cmdTui    `cmd:"" help:"Open an interactive chat in the terminal."`
	Models cmdModels `cmd:"" help:"List the available models."`
}

// CliConfig contains the configuration for the chat cli.
type CliConfig struct {
	Name        string
	Description string
	Exit        func(int)
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	// NewFactory builds the model client factory for the loaded configuration.
	NewFactory func(config.AIConfig) (ai.Factory, error)
	// RunProgram runs the terminal UI.
	RunProgram func(tea.Model) error
}

// NewCliConfig returns a CliConfig wired to the process.
func NewCliConfig() *CliConfig {
	return &CliConfig{
		Name:        "chat",
		Description: "Chat with a generative model from the terminal.",
		Exit:        os.Exit,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		NewFactory:  ai.NewFactory,
		RunProgram: func(m tea.Model) error {
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
}

// Cli parses args and runs the selected subcommand. It returns the process
// exit code.
func Cli(args []string, cfg *CliConfig) (int, error) {
	var cli cliArgs
	parser, err := kong.New(&cli,
		kong.Name(cfg.Name),
		kong.Description(cfg.Description),
		kong.Exit(cfg.Exit),
		kong.Writers(cfg.Stdout, cfg.Stderr),
	)
	if err != nil {
		return 1, err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return 2, err
	}

	log := zap.NewNop()
	if cli.Debug {
		log = logger.NewLogger(true)
	}
	defer func() { _ = log.Sync() }()

	appCfg, err := config.Load()
	if err != nil {
		return 1, err
	}
	models := catalog.NewMemoryStore(appCfg.AI.Catalog())

	modelID, err := selectModel(models, cli.Model)
	if err != nil {
		return 1, err
	}

	apiKey := cli.APIKey
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(appCfg.AI.APIKeyEnv()))
	}

	log.Debug("cli configured",
		zap.String("command", kctx.Command()),
		zap.String("provider", appCfg.AI.Provider),
		zap.String("model", modelID),
		zap.Bool("has_api_key", apiKey != ""),
	)

	if kctx.Command() == "models" {
		for _, m := range models.List() {
			fmt.Fprintf(cfg.Stdout, "%s\t%s\n", m.ID, m.Label)
		}
		return 0, nil
	}

	factory, err := cfg.NewFactory(appCfg.AI)
	if err != nil {
		return 1, err
	}
	conversation := chatService.NewConversation(factory)

	switch kctx.Command() {
	case "ask", "ask <prompt>":
		prompt := cli.Ask.Prompt
		if prompt == "" {
			raw, err := io.ReadAll(cfg.Stdin)
			if err != nil {
				return 1, err
			}
			prompt = string(raw)
		}
		return ask(conversation, chatService.Request{Prompt: prompt, ModelID: modelID, APIKey: apiKey}, cli.Ask.Markdown, cfg)

	case "tui":
		var opts []tui.Option
		if !cli.Tui.Plain {
			if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80)); err == nil {
				opts = append(opts, tui.WithMarkdown(r))
			} else {
				log.Debug("markdown renderer unavailable", zap.Error(err))
			}
		}
		m := tui.New(conversation, models.List(), modelID, apiKey, opts...)
		if err := cfg.RunProgram(m); err != nil {
			return 1, err
		}
		return 0, nil

	default:
		return 2, fmt.Errorf("unrecognized command: %s", kctx.Command())
	}
}

func ask(conversation *chatService.Conversation, req chatService.Request, markdown bool, cfg *CliConfig) (int, error) {
	if err := conversation.Submit(context.Background(), req); err != nil {
		return 1, describe(err)
	}

	turns := conversation.Turns()
	reply := turns[len(turns)-1].Content
	if markdown {
		if rendered, err := glamour.Render(reply, "auto"); err == nil {
			reply = rendered
		}
	}

	fmt.Fprintln(cfg.Stdout, strings.TrimRight(reply, "\n"))
	return 0, nil
}

// selectModel validates the requested model against the catalog.
func selectModel(models catalog.Store, requested string) (string, error) {
	if requested == "" {
		if def, ok := models.Default(); ok {
			return def.ID, nil
		}
		return "", errors.New("no models configured")
	}
	if _, ok := models.FindByID(requested); !ok {
		return "", fmt.Errorf("model %q is not available", requested)
	}
	return requested, nil
}

// describe turns a submission error into the message printed to the user.
func describe(err error) error {
	var aiErr *ai.Error
	switch {
	case errors.Is(err, chatService.ErrMissingCredential):
		return fmt.Errorf("client is not initialized, provide a valid API key with --api-key: %w", err)
	case errors.Is(err, chatService.ErrEmptyPrompt):
		return fmt.Errorf("please enter a prompt: %w", err)
	case errors.As(err, &aiErr):
		return fmt.Errorf("error from %s API (%s): %s", providerOr(aiErr.Provider), aiErr.Kind, aiErr.Message)
	default:
		return err
	}
}

func providerOr(provider string) string {
	if provider == "" {
		return "model service"
	}
	return provider
}
