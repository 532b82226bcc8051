package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "lifesim/internal/cli"
	"lifesim/internal/config"
	"lifesim/internal/game"
	"lifesim/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "lsim",
		Short:        "Life-sim economy CLI client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newDashCmd(&apiBase, cfg),
		newReportCmd(&apiBase, cfg),
		newBusinessCmd(&apiBase, cfg),
		newProposeCmd(&apiBase, cfg),
		newProposalsCmd(&apiBase, cfg),
		newApproveCmd(&apiBase, cfg),
		newRejectCmd(&apiBase, cfg),
		newQuarterCmd(&apiBase, cfg),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

// actorID prefers LSIM_ACTOR_ID over the saved session.
func actorID(cfg config.CLIConfig) (string, error) {
	if cfg.ActorID != "" {
		return cfg.ActorID, game.ValidateActorID(cfg.ActorID)
	}
	f, err := sessionFile()
	if err != nil {
		return "", err
	}
	sess, err := f.Load()
	if err != nil {
		return "", fmt.Errorf("login required: %w", err)
	}
	return sess.ActorID, nil
}

func sessionFile() (*cl.SessionFile, error) {
	dir, err := cl.BaseDir()
	if err != nil {
		return nil, err
	}
	return cl.NewSessionFile(dir), nil
}

func openQueue() (*syncq.Queue, error) {
	dir, err := cl.BaseDir()
	if err != nil {
		return nil, err
	}
	return syncq.Open(dir)
}

// mutate sends a write through send. When the API cannot be reached the
// write is queued for `lsim sync` and queued is true.
func mutate(ctx context.Context, cmd syncq.Command, send func(ctx context.Context, idem string) (map[string]any, error)) (out map[string]any, queued bool, err error) {
	cmd.IdempotencyKey = uuid.NewString()
	out, err = send(ctx, cmd.IdempotencyKey)
	if !cl.IsOffline(err) {
		return out, false, err
	}
	q, qerr := openQueue()
	if qerr == nil {
		qerr = q.Push(cmd)
	}
	if qerr != nil {
		return nil, false, fmt.Errorf("request failed (%v) and could not be queued: %w", err, qerr)
	}
	printWarn(fmt.Sprintf("API unreachable; queued %s %s for `lsim sync`.", cmd.Method, cmd.Path))
	return nil, true, nil
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login [actor_id]",
		Short: "Act as the given player",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) > 0 {
				id = strings.TrimSpace(args[0])
				if err := game.ValidateActorID(id); err != nil {
					return err
				}
			} else {
				var err error
				if id, err = promptActorID("Actor ID"); err != nil {
					return err
				}
			}
			f, err := sessionFile()
			if err != nil {
				return err
			}
			if err := f.Save(cl.Session{ActorID: id, APIBaseURL: *apiBase, LoggedInAt: time.Now().UTC()}); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := newClient(apiBase).Health(ctx); err != nil {
				printWarn(fmt.Sprintf("Session saved, but the API is not reachable: %v", err))
				return nil
			}
			printSuccess(fmt.Sprintf("Logged in as %s.", id))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sessionFile()
			if err != nil {
				return err
			}
			if err := f.Clear(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newDashCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Show your dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := newClient(apiBase).Dashboard(ctx, actor)
			if err != nil {
				return err
			}
			return renderDashboard(out)
		},
	}
}

func newReportCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	var history int
	c := &cobra.Command{
		Use:   "report",
		Short: "Show the projected quarterly report, or past reports with --history",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			client := newClient(apiBase)
			if history > 0 {
				out, err := client.Reports(ctx, actor, history)
				if err != nil {
					return err
				}
				return renderReports(out)
			}
			out, err := client.Report(ctx, actor)
			if err != nil {
				return err
			}
			return renderReport(out)
		},
	}
	c.Flags().IntVar(&history, "history", 0, "show the last N settled quarters")
	return c
}

func newBusinessCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	business := &cobra.Command{
		Use:   "business",
		Short: "Open, inspect and close businesses",
	}
	business.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your businesses",
			RunE: func(cmd *cobra.Command, args []string) error {
				actor, err := actorID(cfg)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
				defer cancel()
				out, err := newClient(apiBase).Businesses(ctx, actor)
				if err != nil {
					return err
				}
				return renderBusinesses(out)
			},
		},
		&cobra.Command{
			Use:   "show <business_id>",
			Short: "Show one business",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				actor, err := actorID(cfg)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
				defer cancel()
				out, err := newClient(apiBase).Business(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return renderBusiness(out)
			},
		},
		newBusinessOpenCmd(apiBase, cfg),
		newBusinessCloseCmd(apiBase, cfg),
		newBusinessPartnerCmd(apiBase, cfg),
	)
	return business
}

func newBusinessOpenCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	var in game.OpenBusinessInput
	c := &cobra.Command{
		Use:   "open <type> [name]",
		Short: "Open a new business",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID(cfg)
			if err != nil {
				return err
			}
			in.Type = args[0]
			if len(args) > 1 {
				in.Name = args[1]
			}
			body, err := decodeInto[map[string]any](in)
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, queued, err := mutate(ctx, syncq.Command{ActorID: actor, Method: http.MethodPost, Path: "/v1/businesses", Body: body},
				func(ctx context.Context, idem string) (map[string]any, error) {
					return client.OpenBusiness(ctx, actor, body, idem)
				})
			if err != nil || queued {
				return err
			}
			printSuccess("Business opened; it starts trading next quarter.")
			return renderBusiness(out)
		},
	}
	c.Flags().Int64Var(&in.UpfrontCost, "upfront", 10_000, "upfront cost")
	c.Flags().Int64Var(&in.CreationCost, "creation", 0, "creation cost")
	c.Flags().IntVar(&in.Price, "price", 5, "price level 1-10")
	c.Flags().IntVar(&in.Quantity, "quantity", 0, "units sold per quarter")
	c.Flags().Float64Var(&in.PurchaseCost, "purchase-cost", 0, "purchase cost per unit")
	c.Flags().IntVar(&in.Stock, "stock", 0, "initial stock")
	return c
}

func newBusinessCloseCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "close <business_id>",
		Short: "Liquidate a business you hold a majority of",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID(cfg)
			if err != nil {
				return err
			}
			id := args[0]
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, queued, err := mutate(ctx, syncq.Command{ActorID: actor, Method: http.MethodPost, Path: "/v1/businesses/" + id + "/close"},
				func(ctx context.Context, idem string) (map[string]any, error) {
					return client.CloseBusiness(ctx, actor, id, idem)
				})
			if err != nil || queued {
				return err
			}
			return renderClose(out)
		},
	}
}

func newBusinessPartnerCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	var invested int64
	c := &cobra.Command{
		Use:   "partner <business_id> <actor_id> <share>",
		Short: "Admit a co-owner, carving their share out of yours",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID(cfg)
			if err != nil {
				return err
			}
			id, partner := args[0], args[1]
			share, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid share %q", args[2])
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			body := map[string]any{"actor_id": partner, "share": share, "invested": invested}
			out, queued, err := mutate(ctx, syncq.Command{ActorID: actor, Method: http.MethodPost, Path: "/v1/businesses/" + id + "/partners", Body: body},
				func(ctx context.Context, idem string) (map[string]any, error) {
					return client.AddPartner(ctx, actor, id, partner, share, invested, idem)
				})
			if err != nil || queued {
				return err
			}
			printSuccess(fmt.Sprintf("%s now holds %.1f%%.", partner, share))
			return renderBusiness(out)
		},
	}
	c.Flags().Int64Var(&invested, "invested", 0, "amount the partner invested")
	return c
}

// proposeSpec describes one `lsim propose` subcommand: its change type, the
// positional arguments after the business id, and how they become a payload.
type proposeSpec struct {
	use     string
	short   string
	kind    string
	args    int
	payload func(args []string) (map[string]any, error)
}

func proposeSpecs() []proposeSpec {
	intArg := func(key string) func([]string) (map[string]any, error) {
		return func(args []string) (map[string]any, error) {
			v, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q", key, args[0])
			}
			return map[string]any{key: v}, nil
		}
	}
	employeeArg := func(args []string) (map[string]any, error) {
		return map[string]any{"employee_id": args[0]}, nil
	}
	none := func([]string) (map[string]any, error) { return nil, nil }

	return []proposeSpec{
		{use: "price <business_id> <level>", short: "Set the price level (1-10)", kind: "price", args: 1, payload: intArg("price")},
		{use: "quantity <business_id> <units>", short: "Set units sold per quarter", kind: "quantity", args: 1, payload: intArg("quantity")},
		{use: "hire <business_id> <role> <salary>", short: "Hire an employee", kind: "hire_employee", args: 2, payload: func(args []string) (map[string]any, error) {
			salary, err := strconv.ParseFloat(args[1], 64)
			if err != nil || salary < 0 {
				return nil, fmt.Errorf("invalid salary %q", args[1])
			}
			return map[string]any{"employee": map[string]any{"role": args[0], "salary": salary, "level": 1}}, nil
		}},
		{use: "fire <business_id> <employee_id>", short: "Fire an employee", kind: "fire_employee", args: 1, payload: employeeArg},
		{use: "role <business_id> <employee_id|me> <role>", short: "Change a role, or take one yourself with 'me'", kind: "change_role", args: 2, payload: func(args []string) (map[string]any, error) {
			if strings.EqualFold(args[0], "me") {
				return map[string]any{"is_me": true, "role": args[1]}, nil
			}
			return map[string]any{"employee_id": args[0], "role": args[1]}, nil
		}},
		{use: "promote <business_id> <employee_id>", short: "Promote an employee one level", kind: "promote_employee", args: 1, payload: employeeArg},
		{use: "demote <business_id> <employee_id>", short: "Demote an employee one level", kind: "demote_employee", args: 1, payload: employeeArg},
		{use: "freeze <business_id>", short: "Freeze the business and pay out the roster", kind: "freeze", payload: none},
		{use: "unfreeze <business_id>", short: "Reactivate a frozen business", kind: "unfreeze", payload: none},
		{use: "branch <business_id> [name]", short: "Open a branch paid from the business wallet", kind: "open_branch", args: -1, payload: func(args []string) (map[string]any, error) {
			if len(args) == 0 {
				return nil, nil
			}
			return map[string]any{"name": args[0]}, nil
		}},
		{use: "fund <business_id> <amount>", short: "Collect funds from partners into the wallet", kind: "fund_collection", args: 1, payload: func(args []string) (map[string]any, error) {
			amount, err := parseMoney(args[0])
			if err != nil {
				return nil, err
			}
			return map[string]any{"amount": amount}, nil
		}},
		{use: "autobuy <business_id> <threshold>", short: "Restock automatically below a threshold", kind: "auto_purchase", args: 1, payload: intArg("threshold")},
	}
}

func newProposeCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	propose := &cobra.Command{
		Use:   "propose",
		Short: "Change a shared business; applied directly with a majority stake",
	}
	for _, spec := range proposeSpecs() {
		spec := spec
		argsRule := cobra.ExactArgs(spec.args + 1)
		if spec.args < 0 {
			argsRule = cobra.RangeArgs(1, 2)
		}
		propose.AddCommand(&cobra.Command{
			Use:   spec.use,
			Short: spec.short,
			Args:  argsRule,
			RunE: func(cmd *cobra.Command, args []string) error {
				actor, err := actorID(cfg)
				if err != nil {
					return err
				}
				businessID := args[0]
				payload, err := spec.payload(args[1:])
				if err != nil {
					return err
				}
				client := newClient(apiBase)
				ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
				defer cancel()
				out, queued, err := mutate(ctx, syncq.Command{
					ActorID: actor,
					Method:  http.MethodPost,
					Path:    cl.ProposePath(businessID),
					Body:    cl.ProposeBody(spec.kind, payload),
				}, func(ctx context.Context, idem string) (map[string]any, error) {
					return client.Propose(ctx, actor, businessID, spec.kind, payload, idem)
				})
				if err != nil || queued {
					return err
				}
				return renderChangeResult(out)
			},
		})
	}
	return propose
}

func newProposalsCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "proposals [business_id]",
		Short: "List proposals you know of",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID(cfg)
			if err != nil {
				return err
			}
			businessID := ""
			if len(args) > 0 {
				businessID = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := newClient(apiBase).Proposals(ctx, actor, businessID)
			if err != nil {
				return err
			}
			return renderProposals(out)
		},
	}
}

func newApproveCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <proposal_id>",
		Short: "Approve a pending proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID(cfg)
			if err != nil {
				return err
			}
			id := args[0]
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, queued, err := mutate(ctx, syncq.Command{ActorID: actor, Method: http.MethodPost, Path: "/v1/proposals/" + id + "/approve"},
				func(ctx context.Context, idem string) (map[string]any, error) {
					return client.Approve(ctx, actor, id, idem)
				})
			if err != nil || queued {
				return err
			}
			return renderChangeResult(out)
		},
	}
}

func newRejectCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	var reason string
	c := &cobra.Command{
		Use:   "reject <proposal_id>",
		Short: "Reject a pending proposal, or withdraw your own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID(cfg)
			if err != nil {
				return err
			}
			id := args[0]
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, queued, err := mutate(ctx, syncq.Command{ActorID: actor, Method: http.MethodPost, Path: "/v1/proposals/" + id + "/reject", Body: map[string]any{"reason": reason}},
				func(ctx context.Context, idem string) (map[string]any, error) {
					return client.Reject(ctx, actor, id, reason, idem)
				})
			if err != nil || queued {
				return err
			}
			return renderChangeResult(out)
		},
	}
	c.Flags().StringVar(&reason, "reason", "", "reason shown to the initiator")
	return c
}

func newQuarterCmd(apiBase *string, cfg config.CLIConfig) *cobra.Command {
	quarter := &cobra.Command{
		Use:   "quarter",
		Short: "Quarter administration",
	}
	quarter.AddCommand(&cobra.Command{
		Use:   "advance",
		Short: "Settle the current quarter for every player",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := newClient(apiBase)
			client.AdminKey = cfg.AdminKey
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()
			out, err := client.AdvanceQuarter(ctx)
			if err != nil {
				return err
			}
			return renderQuarter(out)
		},
	})
	return quarter
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while the API was unreachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openQueue()
			if err != nil {
				return err
			}
			queue, err := q.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			results, remaining := cl.Replay(ctx, newClient(apiBase), queue)
			replayed := 0
			for _, r := range results {
				if r.Err != nil {
					printError(fmt.Sprintf("Dropped %s %s: %v", r.Command.Method, r.Command.Path, r.Err))
					continue
				}
				replayed++
			}
			if err := q.Save(remaining); err != nil {
				return err
			}
			if len(remaining) > 0 {
				printWarn(fmt.Sprintf("API still unreachable; %d writes remain queued.", len(remaining)))
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", replayed, len(remaining)))
			return nil
		},
	}
}
