package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohitkal/rubi/internal/config"
	"github.com/rohitkal/rubi/internal/queue"
	"github.com/rohitkal/rubi/internal/storage"
)

// --- message ---

// messageReply mirrors the server's message response envelope.
type messageReply struct {
	Text    string `json:"response"`
	Action  string `json:"action"`
	Pending bool   `json:"awaiting_confirmation"`
}

var messageCmd = &cobra.Command{
	Use:   "message <text>",
	Short: "Send a message to the assistant",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/message", map[string]string{"text": text})
		if err != nil {
			return err
		}

		var result messageReply
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Text)
		if result.Pending {
			printWarning("awaiting confirmation — reply with another message")
		}
		return nil
	},
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Semantic search over stored notes and documents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/index/search", map[string]any{
			"text": query,
			"k":    limit,
		})
		if err != nil {
			return err
		}

		var result struct {
			Results []struct {
				ID       int64   `json:"id"`
				Text     string  `json:"text"`
				Distance float32 `json:"distance"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range result.Results {
			fmt.Printf("\n%s [distance: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Distance)
			text := r.Text
			if len(text) > 500 {
				text = text[:500] + "..."
			}
			fmt.Printf("  %s\n", text)
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- tasks ---

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Manage the task queue",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		taskType, _ := cmd.Flags().GetString("type")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/tasks"
		if taskType != "" {
			path += "?type=" + taskType
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var tasks []queue.Task
		if err := decodeJSON(resp, &tasks); err != nil {
			return err
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks queued.")
			return nil
		}

		for _, t := range tasks {
			content := t.Content
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			fmt.Printf("%s  %-6s  %s\n",
				colorize(colorCyan, fmt.Sprintf("%4d", t.Seq)),
				t.Type,
				content,
			)
		}
		return nil
	},
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <seq>",
	Short: "Delete a task by its number",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/tasks/"+args[0])
		if err != nil {
			return err
		}

		var result struct {
			Status string `json:"status"`
			Count  int    `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted task %s (%d remaining)", args[0], result.Count)
		return nil
	},
}

func init() {
	tasksListCmd.Flags().String("type", "", "filter by task type (note, link, upload)")
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksDeleteCmd)
}

// --- users ---

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage codeword users",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <codeword> <name>",
	Short: "Register a codeword for a caller",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		codeword, name := args[0], args[1]

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		if err := store.SaveUser(storage.User{
			Codeword:  codeword,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return fmt.Errorf("saving user: %w", err)
		}

		printSuccess("Registered user %s", name)
		return nil
	},
}

func init() {
	usersCmd.AddCommand(usersAddCmd)
}
