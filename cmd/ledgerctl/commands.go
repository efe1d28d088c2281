package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	httpserver "review_ledger/internal/adapters/http_server"
	"review_ledger/internal/adapters/ledgerclient"
	"review_ledger/internal/domain"
)

// rootCommand wires every subcommand; flags fall back to LEDGER_* env vars.
func rootCommand(out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ledger")
	v.AutomaticEnv()
	v.SetDefault("api_url", "http://localhost:8080")

	root := &cobra.Command{
		Use:          "ledgerctl",
		Short:        "Operate a review ledger over its HTTP API",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("api-url", "", "ledger API base URL (LEDGER_API_URL)")
	root.PersistentFlags().String("token", "", "bearer token (LEDGER_TOKEN)")
	_ = v.BindPFlag("api_url", root.PersistentFlags().Lookup("api-url"))
	_ = v.BindPFlag("token", root.PersistentFlags().Lookup("token"))

	client := func() *ledgerclient.Client {
		return ledgerclient.New(v.GetString("api_url"), v.GetString("token"))
	}
	emit := func(x any) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(x)
	}

	root.AddCommand(
		submitCommand(client, emit),
		updateCommand(client, emit),
		getCommand(client, emit),
		countCommand(client, emit),
		userReviewCommand(client, emit),
		setAuthorityCommand(client, emit),
		setCooldownCommand(client, emit),
		configCommand(client, emit),
		tokenCommand(out),
	)
	return root
}

type (
	clientFn func() *ledgerclient.Client
	printFn  func(any) error
)

// outcome mirrors the API envelope so scripts see the same shape.
type outcome struct {
	OK    bool `json:"ok"`
	Value any  `json:"value"`
}

// rejected prints ledger rejections as results; other errors abort the command.
func rejected(emit printFn, err error) error {
	if c, ok := domain.CodeOf(err); ok {
		return emit(outcome{OK: false, Value: uint32(c)})
	}
	if domain.IsRejection(err) {
		return emit(outcome{OK: false, Value: false})
	}
	return err
}

func parseUint(s, what string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a non-negative integer: %q", what, s)
	}
	return n, nil
}

func parseRating(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("rating must be a non-negative integer: %q", s)
	}
	return uint32(n), nil
}

func submitCommand(client clientFn, emit printFn) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <location-id> <rating> <text...>",
		Short: "Submit a review as the token's subject",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseUint(args[0], "location id")
			if err != nil {
				return err
			}
			rating, err := parseRating(args[1])
			if err != nil {
				return err
			}
			id, err := client().Submit(cmd.Context(), loc, strings.Join(args[2:], " "), rating)
			if err != nil {
				return rejected(emit, err)
			}
			return emit(outcome{OK: true, Value: id})
		},
	}
}

func updateCommand(client clientFn, emit printFn) *cobra.Command {
	return &cobra.Command{
		Use:   "update <review-id> <rating> <text...>",
		Short: "Rewrite one of your reviews",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUint(args[0], "review id")
			if err != nil {
				return err
			}
			rating, err := parseRating(args[1])
			if err != nil {
				return err
			}
			if err := client().Update(cmd.Context(), id, strings.Join(args[2:], " "), rating); err != nil {
				return rejected(emit, err)
			}
			return emit(outcome{OK: true, Value: true})
		},
	}
}

func getCommand(client clientFn, emit printFn) *cobra.Command {
	return &cobra.Command{
		Use:   "get <review-id>",
		Short: "Show a review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUint(args[0], "review id")
			if err != nil {
				return err
			}
			rv, found, err := client().Review(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !found {
				return emit(nil)
			}
			return emit(rv)
		},
	}
}

func countCommand(client clientFn, emit printFn) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the number of reviews ever created",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := client().Count(cmd.Context())
			if err != nil {
				return err
			}
			return emit(n)
		},
	}
}

func userReviewCommand(client clientFn, emit printFn) *cobra.Command {
	return &cobra.Command{
		Use:   "user-review <author> <location-id>",
		Short: "Show the index entry for an author and location",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := parseUint(args[1], "location id")
			if err != nil {
				return err
			}
			ur, found, err := client().UserReview(cmd.Context(), domain.Identity(args[0]), loc)
			if err != nil {
				return err
			}
			if !found {
				return emit(nil)
			}
			return emit(ur)
		},
	}
}

func setAuthorityCommand(client clientFn, emit printFn) *cobra.Command {
	return &cobra.Command{
		Use:   "set-authority <identity>",
		Short: "Set the one-time ledger authority (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().SetAuthority(cmd.Context(), domain.Identity(args[0])); err != nil {
				return rejected(emit, err)
			}
			return emit(outcome{OK: true, Value: true})
		},
	}
}

func setCooldownCommand(client clientFn, emit printFn) *cobra.Command {
	return &cobra.Command{
		Use:   "set-cooldown <period>",
		Short: "Set the cooldown period in logical time units (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("period must be an integer: %q", args[0])
			}
			if err := client().SetCooldown(cmd.Context(), p); err != nil {
				return rejected(emit, err)
			}
			return emit(outcome{OK: true, Value: true})
		},
	}
}

func configCommand(client clientFn, emit printFn) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the ledger configuration (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client().Config(cmd.Context())
			if err != nil {
				return err
			}
			return emit(c)
		},
	}
}

// tokenCommand signs a bearer token locally with JWT_SECRET.
func tokenCommand(out io.Writer) *cobra.Command {
	var (
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			v.AutomaticEnv()
			auth, err := httpserver.NewAuthenticator(v.GetString("jwt_secret"))
			if err != nil {
				return err
			}
			tok, err := auth.Issue(domain.Identity(args[0]), roles, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, tok)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant (repeatable), e.g. ADMIN")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 means no expiry")
	return cmd
}
