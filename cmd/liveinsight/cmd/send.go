package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/liveinsight/pkg/liveinsight"
	"github.com/randalmurphal/liveinsight/pkg/liveinsight/event"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Track a page view and an optional event, then flush",
	Example: `  liveinsight send --site-key abc123 --endpoint https://collector.example.com/api \
    --url https://shop.example.com/cart --event add_to_cart --prop sku=A-1 --prop qty=2`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().String("site-key", "", "site key (overrides config)")
	sendCmd.Flags().String("endpoint", "", "collector base URL (overrides config)")
	sendCmd.Flags().String("event", "", "custom event type to track after the page view")
	sendCmd.Flags().StringArray("prop", nil, "event property as key=value (repeatable; JSON scalars are decoded)")
	sendCmd.Flags().String("url", "", "page URL")
	sendCmd.Flags().String("title", "", "page title")
	sendCmd.Flags().String("referrer", "", "page referrer")
	sendCmd.Flags().Bool("no-csrf", false, "skip the anti-CSRF token")
	sendCmd.Flags().Duration("timeout", 30*time.Second, "maximum time to wait for delivery")
}

func runSend(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("site-key") {
		cfg.SiteKey, _ = cmd.Flags().GetString("site-key")
	}
	if cmd.Flags().Changed("endpoint") {
		cfg.Endpoint, _ = cmd.Flags().GetString("endpoint")
	}
	if noCSRF, _ := cmd.Flags().GetBool("no-csrf"); noCSRF {
		cfg.CSRF = false
	}
	if cfg.SiteKey == "" {
		return fmt.Errorf("--site-key required (or set LI_SITE_KEY)")
	}

	rawProps, _ := cmd.Flags().GetStringArray("prop")
	props, err := parseProps(rawProps)
	if err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	store, err := openStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	page := event.Page{UserAgent: "liveinsight-cli"}
	page.URL, _ = cmd.Flags().GetString("url")
	page.Title, _ = cmd.Flags().GetString("title")
	page.Referrer, _ = cmd.Flags().GetString("referrer")

	client := liveinsight.New(
		liveinsight.WithStore(store),
		liveinsight.WithLogger(logger),
		liveinsight.WithEndpoint(cfg.Endpoint),
		liveinsight.WithAPIKey(cfg.APIKey),
		liveinsight.WithCSRF(cfg.CSRF),
		liveinsight.WithPage(page),
	)
	if err := client.Init(cfg.SiteKey, cfg.Settings); err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}

	id, _ := client.Identity()
	if eventType, _ := cmd.Flags().GetString("event"); eventType != "" {
		if err := client.Track(eventType, props); err != nil {
			_ = client.Close(context.Background())
			return fmt.Errorf("failed to track %s: %w", eventType, err)
		}
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		return fmt.Errorf("delivery did not finish: %w", err)
	}

	stats := client.Stats()
	if stats.Dropped > 0 {
		return fmt.Errorf("%d of %d event(s) not delivered (see log)",
			stats.Dropped, stats.Dropped+stats.Delivered)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %d event(s) session=%s user=%s resumed=%t\n",
		stats.Delivered, id.SessionID, id.UserID, id.Resumed)
	return nil
}

// parseProps turns key=value pairs into properties. Values that parse as a
// JSON scalar (numbers, booleans, null, quoted strings) keep that type.
func parseProps(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --prop %q (want key=value)", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			switch decoded.(type) {
			case map[string]any, []any:
				props[key] = value
			default:
				props[key] = decoded
			}
			continue
		}
		props[key] = value
	}
	return props, nil
}
