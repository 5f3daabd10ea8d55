package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/AesBiarenti/STAJ22001/engine/domain"
	"github.com/spf13/cobra"
)

// askReply mirrors the body of POST /api/ask.
type askReply struct {
	Answer   string                `json:"answer"`
	Success  bool                  `json:"success"`
	Error    string                `json:"error"`
	Stage    string                `json:"stage"`
	Sources  []domain.SearchResult `json:"sources"`
	Duration float64               `json:"duration"`
	Message  string                `json:"message"`
}

type askClient struct {
	baseURL string
	http    *http.Client
}

func (c *askClient) ask(ctx context.Context, question string) (askReply, error) {
	body, _ := json.Marshal(map[string]string{"question": question})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.baseURL, "/")+"/api/ask", bytes.NewReader(body))
	if err != nil {
		return askReply{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return askReply{}, fmt.Errorf("api unavailable: %w", err)
	}
	defer resp.Body.Close()

	var out askReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return askReply{}, fmt.Errorf("decode reply (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return out, fmt.Errorf("api: %d %s", resp.StatusCode, out.Message)
	}
	return out, nil
}

// chatLoop reads one question per line until EOF.
func chatLoop(ctx context.Context, c *askClient, in io.Reader, out io.Writer, showSources bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			fmt.Fprint(out, "> ")
			continue
		}
		reply, err := c.ask(ctx, q)
		switch {
		case err != nil:
			fmt.Fprintf(out, "hata: %v\n", err)
		default:
			fmt.Fprintln(out, reply.Answer)
			if reply.Error != "" {
				fmt.Fprintf(out, "[%s, stage=%s]\n", reply.Error, reply.Stage)
			}
			if showSources {
				for _, s := range reply.Sources {
					fmt.Fprintf(out, "  - %s (%g saat)\n", s.Name, s.TotalHours())
				}
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprint(out, "> ")
	}
	fmt.Fprintln(out)
	return scanner.Err()
}

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions against a running API, one per line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, _ := cmd.Flags().GetString("api")
			sources, _ := cmd.Flags().GetBool("sources")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			c := &askClient{baseURL: api, http: &http.Client{Timeout: timeout}}
			return chatLoop(cmd.Context(), c, cmd.InOrStdin(), cmd.OutOrStdout(), sources)
		},
	}
	cmd.Flags().String("api", "http://localhost:8080", "API base URL")
	cmd.Flags().Bool("sources", false, "print the records each answer used")
	cmd.Flags().Duration("timeout", 90*time.Second, "per-question timeout")
	return cmd
}
