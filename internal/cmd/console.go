package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reeflective/readline"
	"github.com/spf13/cobra"
)

var (
	consoleURL   string
	consoleToken string
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive line editor for sending JSON-RPC requests to a running bridge",
	Long: `console opens a readline-based prompt for manually issuing JSON-RPC
requests against a running bridge's HTTP endpoint (a sync POST per line),
for protocol debugging without a full MCP client.

Type a bare method name (e.g. "tools/list") to send {"method": "..."}
with an auto-incrementing id and empty params, or a full JSON-RPC object to
send it as-is.

Commands:
  /quit, /exit  - Exit the console
  /help         - Show available commands`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVar(&consoleURL, "url", "http://127.0.0.1:8080/", "Bridge HTTP endpoint to send requests to")
	consoleCmd.Flags().StringVar(&consoleToken, "token", "", "Bearer token, if the bridge requires one")
}

var consoleSlashCommands = []struct {
	name        string
	description string
}{
	{"/help", "Show available commands"},
	{"/quit", "Exit the console"},
	{"/exit", "Exit the console (alias)"},
}

func runConsole(cmd *cobra.Command, args []string) error {
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return "mcproxy> " })

	history := readline.NewInMemoryHistory()
	rl.History.Add("default", history)

	rl.Completer = func(line []rune, cursor int) readline.Completions {
		return completeConsoleInput(string(line), cursor)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	nextID := 1

	fmt.Printf("connected to %s. Type a method name or full JSON-RPC object, /help for commands.\n", consoleURL)

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				fmt.Println("bye")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			switch strings.ToLower(strings.TrimPrefix(line, "/")) {
			case "quit", "exit":
				return nil
			case "help":
				printConsoleHelp()
			default:
				fmt.Printf("unknown command: %s\n", line)
			}
			continue
		}

		body, err := buildRequestBody(line, nextID)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		nextID++

		resp, err := sendRequest(client, consoleURL, consoleToken, body)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(resp)
	}
}

// buildRequestBody turns console input into a JSON-RPC request body: a bare
// method name becomes {"jsonrpc":"2.0","id":id,"method":line,"params":{}},
// a line starting with '{' is sent as-is after stamping in jsonrpc/id if
// missing.
func buildRequestBody(line string, id int) ([]byte, error) {
	if !strings.HasPrefix(line, "{") {
		req := map[string]any{
			"jsonrpc": "2.0",
			"id":      id,
			"method":  line,
			"params":  map[string]any{},
		}
		return json.Marshal(req)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, ok := obj["jsonrpc"]; !ok {
		obj["jsonrpc"] = "2.0"
	}
	if _, ok := obj["id"]; !ok {
		obj["id"] = id
	}
	return json.Marshal(obj)
}

func sendRequest(client *http.Client, url, token string, body []byte) (string, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[%d] %s", resp.StatusCode, string(respBody)), nil
}

func printConsoleHelp() {
	fmt.Println(`
Available commands:
  /quit, /exit  - Exit the console
  /help         - Show this help message

Tips:
  - A bare method name sends {"method": "<name>"} with an auto id
  - A line starting with '{' is sent verbatim (jsonrpc/id filled in if absent)
  - Use up/down arrows for command history`)
}

func completeConsoleInput(line string, cursor int) readline.Completions {
	if cursor > len(line) {
		cursor = len(line)
	}
	text := line[:cursor]
	if !strings.HasPrefix(text, "/") {
		return readline.Completions{}
	}

	var pairs []string
	for _, c := range consoleSlashCommands {
		if strings.HasPrefix(c.name, text) {
			pairs = append(pairs, c.name, c.description)
		}
	}
	if len(pairs) == 0 {
		return readline.Completions{}
	}
	return readline.CompleteValuesDescribed(pairs...).Tag("commands").NoSpace('/')
}
