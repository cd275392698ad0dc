// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/kadirpekel/convograph/pkg/agentstore"
	"github.com/kadirpekel/convograph/pkg/engine"
	"github.com/kadirpekel/convograph/pkg/graph"
	"github.com/kadirpekel/convograph/pkg/runtime"
)

// ChatCmd runs one session of a graph file against stdin and stdout.
// LLMs, knowledge and webhooks come from the config as for serve.
type ChatCmd struct {
	Graph string            `arg:"" help:"Agent graph file." type:"existingfile"`
	Var   map[string]string `short:"v" help:"Initial session variables (key=value)." mapsep:","`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, err := graph.ParseFile(c.Graph)
	if err != nil {
		return err
	}
	cfg, loader, err := loadConfig(ctx, cli)
	if err != nil {
		return err
	}
	if loader != nil {
		defer loader.Close()
	}

	rt, err := runtime.New(ctx, cfg, runtime.WithAgents(agentstore.NewMemory(g)))
	if err != nil {
		return fmt.Errorf("failed to create runtime: %w", err)
	}
	defer rt.Close()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	name := g.Name
	if name == "" {
		name = g.ID
	}
	if interactive {
		fmt.Printf("\nChatting with %s. Type /quit to leave.\n\n", name)
	}

	conv := rt.NewConversation(g.ID)
	rep, err := conv.Start(ctx, c.Var)
	if err != nil {
		return err
	}
	printReply(os.Stdout, name, rep)

	reader := bufio.NewReader(os.Stdin)
	for !conv.Done() {
		if interactive {
			fmt.Print("You: ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("failed to read input: %w", err)
			}
			if line == "" {
				return nil
			}
		}

		input := strings.TrimSpace(line)
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			_, err := rt.Service().Close(ctx, conv.SessionID())
			return err
		}

		rep, err := conv.Send(ctx, input)
		if err != nil {
			return err
		}
		printReply(os.Stdout, name, rep)
	}

	if interactive {
		fmt.Printf("\nSession %s ended.\n", conv.SessionID())
	}
	return nil
}

func printReply(w io.Writer, name string, rep *engine.Reply) {
	for _, msg := range rep.Messages {
		fmt.Fprintf(w, "%s: %s\n", name, msg)
	}
	if rep.Action != nil && len(rep.Action.MissingParams) > 0 {
		fmt.Fprintf(w, "  (%s needs: %s)\n", rep.Action.Name, strings.Join(rep.Action.MissingParams, ", "))
	}
}
