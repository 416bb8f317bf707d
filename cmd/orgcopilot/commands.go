package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/orgcopilot/orgcopilot/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Send a question through the agent pipeline",
	Long: `Send a question through the agent pipeline.

Examples:
  orgcopilot ask "What rooms are free tomorrow at 10am?"
  orgcopilot ask --role faculty "Show attendance trends this month"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/chat", map[string]any{"text": text, "role": role})
		if err != nil {
			return err
		}

		var turn struct {
			Text        string   `json:"text"`
			Failed      bool     `json:"failed"`
			Kind        string   `json:"kind"`
			Intent      string   `json:"intent"`
			Suggestions []string `json:"suggestions"`
		}
		if err := decodeJSON(resp, &turn); err != nil {
			return err
		}

		if turn.Failed {
			printError("%s", turn.Text)
			return nil
		}

		fmt.Println(turn.Text)
		if len(turn.Suggestions) > 0 {
			fmt.Println()
			for _, s := range turn.Suggestions {
				fmt.Printf("  %s %s\n", colorize(colorCyan, "·"), s)
			}
		}
		return nil
	},
}

func init() {
	askCmd.Flags().String("role", "", "caller role: student, faculty, admin, or principal")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversation turns",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/history?limit=%d", limit))
		if err != nil {
			return err
		}

		if asJSON {
			var turns any
			if err := decodeJSON(resp, &turns); err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(turns)
		}

		var turns []struct {
			Author    string `json:"author"`
			Text      string `json:"text"`
			CreatedAt string `json:"created_at"`
			Failed    bool   `json:"failed"`
		}
		if err := decodeJSON(resp, &turns); err != nil {
			return err
		}

		if len(turns) == 0 {
			fmt.Println("No conversation history.")
			return nil
		}

		for _, t := range turns {
			label := colorize(colorCyan, t.Author)
			if t.Failed {
				label = colorize(colorRed, t.Author)
			}
			text := t.Text
			if len(text) > 120 {
				text = text[:120] + "..."
			}
			fmt.Printf("%s  %s  %s\n", t.CreatedAt, label, text)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of turns to show")
	historyCmd.Flags().Bool("json", false, "print raw turns as JSON")
}

// --- broadcast ---

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Draft, approve, and reject broadcasts",
}

type draftView struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Payload struct {
		Subject             string `json:"subject"`
		Body                string `json:"body"`
		AudienceRole        string `json:"audience_role"`
		EstimatedRecipients int    `json:"estimated_recipients"`
		Urgency             string `json:"urgency"`
	} `json:"payload"`
	Report *struct {
		DeliveryStatus  string `json:"delivery_status"`
		TotalRecipients int    `json:"total_recipients"`
		Delivered       int    `json:"delivered"`
		Failed          int    `json:"failed"`
		Pending         int    `json:"pending"`
		Inconsistent    bool   `json:"inconsistent"`
	} `json:"report"`
}

func printDraft(d draftView) {
	fmt.Printf("%s  [%s]\n", colorize(colorBold, d.ID), d.Status)
	fmt.Printf("  Subject:   %s\n", d.Payload.Subject)
	fmt.Printf("  Audience:  %s (~%d recipients)\n", d.Payload.AudienceRole, d.Payload.EstimatedRecipients)
	if d.Payload.Urgency != "" {
		fmt.Printf("  Urgency:   %s\n", d.Payload.Urgency)
	}
	if d.Report != nil {
		fmt.Printf("  Delivery:  %s (%d/%d delivered, %d failed, %d pending)\n",
			d.Report.DeliveryStatus, d.Report.Delivered, d.Report.TotalRecipients,
			d.Report.Failed, d.Report.Pending)
		if d.Report.Inconsistent {
			printWarning("delivery counts do not add up to the recipient total")
		}
	}
}

var broadcastDraftCmd = &cobra.Command{
	Use:   "draft <text>",
	Short: "Ask the composition agent to draft a broadcast",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/broadcasts", map[string]any{"text": text, "role": role})
		if err != nil {
			return err
		}

		var d draftView
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}

		printSuccess("Draft %s created, waiting for approval", d.ID)
		printDraft(d)
		return nil
	},
}

var broadcastListCmd = &cobra.Command{
	Use:   "list",
	Short: "List broadcasts in creation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/broadcasts"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var drafts []draftView
		if err := decodeJSON(resp, &drafts); err != nil {
			return err
		}

		if len(drafts) == 0 {
			fmt.Println("No broadcasts found.")
			return nil
		}

		for _, d := range drafts {
			subject := d.Payload.Subject
			if len(subject) > 60 {
				subject = subject[:60] + "..."
			}
			fmt.Printf("%s  %-8s  %s\n", colorize(colorCyan, d.ID), d.Status, subject)
		}
		return nil
	},
}

var broadcastShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single broadcast as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/broadcasts/" + args[0])
		if err != nil {
			return err
		}

		var draft any
		if err := decodeJSON(resp, &draft); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(draft)
	},
}

var broadcastApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve a pending draft and deliver it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post("/broadcasts/"+args[0]+"/approve", map[string]any{"role": role})
		if err != nil {
			return err
		}

		var d draftView
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}

		if d.Status == "sent" {
			printSuccess("Broadcast %s sent", d.ID)
		} else {
			printError("Broadcast %s ended up %s", d.ID, d.Status)
		}
		printDraft(d)
		return nil
	},
}

var broadcastRejectCmd = &cobra.Command{
	Use:   "reject <id>",
	Short: "Reject a pending draft, removing it entirely",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete("/broadcasts/" + args[0])
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Rejected broadcast %s", args[0])
		return nil
	},
}

func init() {
	broadcastDraftCmd.Flags().String("role", "", "caller role: student, faculty, admin, or principal")
	broadcastApproveCmd.Flags().String("role", "", "caller role: student, faculty, admin, or principal")
	broadcastListCmd.Flags().String("status", "", "filter by status: draft, approved, sent, or failed")
	broadcastCmd.AddCommand(broadcastDraftCmd)
	broadcastCmd.AddCommand(broadcastListCmd)
	broadcastCmd.AddCommand(broadcastShowCmd)
	broadcastCmd.AddCommand(broadcastApproveCmd)
	broadcastCmd.AddCommand(broadcastRejectCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
