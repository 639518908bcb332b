package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stockroute/internal/app"
	"stockroute/internal/config"
	"stockroute/internal/db"
	"stockroute/internal/distribution"
	"stockroute/internal/domain"
	"stockroute/internal/engine"
	"stockroute/internal/events"
	"stockroute/internal/ingest"
	"stockroute/internal/repo"
	"stockroute/internal/server"
)

const cliActor = "cli"

var rootCmd = &cobra.Command{
	Use:   "sr",
	Short: "Stockroute CLI",
	Long: `Stockroute turns order spreadsheets into pickup plans.
- Warehouses: lines available in a main warehouse ship from there in full.
- Stores: remaining units are asked from stores one at a time, favouring stores on
  the delivery route of the day and spreading requests round-robin.
- Shortages: units no store can cover are reported as insufficient.
- Routes: one active route per weekday (0 = Sunday) lists the store ids visited.
- Event log: every upload, run and edit is recorded, view with 'sr log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("STOCKROUTE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("db-driver", "sqlite", "database driver (sqlite, postgres)")
	flags.String("db-dsn", "", "database DSN (required for postgres)")
	flags.String("jwt-secret", "", "secret used to sign bearer tokens")
	for _, name := range []string{"workspace", "json", "db-driver", "db-dsn", "jwt-secret"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(storeCmd())
	rootCmd.AddCommand(routeCmd())
	rootCmd.AddCommand(distributeCmd())
	rootCmd.AddCommand(filesCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create stockroute.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s already exists (use --force to overwrite)\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stores, err := e.ListStores(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Workspace ready at %s (%d stores)\n", db.Path(workspace), len(stores))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("jwt-secret") == "" {
				return fmt.Errorf("STOCKROUTE_JWT_SECRET (or --jwt-secret) is required for bearer auth")
			}
			env, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			sinks := events.WebhookSinks(env.Config.Events.Webhooks)
			if env.Config.Events.NATS.URL != "" {
				stanSink, err := events.DialStan(env.Config.Events.NATS, env.Config.NATSSubject())
				if err != nil {
					return err
				}
				defer stanSink.Close()
				sinks = append(sinks, stanSink)
			}
			if len(sinks) > 0 {
				d := events.NewDispatcher(env.Engine.Repo, sinks...)
				go d.Run(cmd.Context())
				fmt.Printf("Forwarding events to %d sink(s)\n", len(sinks))
			}

			handler, err := server.New(server.Config{Engine: env.Engine, BasePath: basePath, Auth: server.AuthConfig{Logger: log.Default()}})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Stockroute API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load stores and routes from the config seed section",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rep, err := e.Seed(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(rep)
			})
		},
	}
}

func userCmd() *cobra.Command {
	usr := &cobra.Command{Use: "user", Short: "Manage users"}
	var email, password, name string
	var admin bool
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			role := domain.RoleUser
			if admin {
				role = domain.RoleAdmin
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateUser(ctx, email, password, name, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(res.User)
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "email address")
	create.Flags().StringVar(&password, "password", "", "password")
	create.Flags().StringVar(&name, "name", "", "display name")
	create.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")
	usr.AddCommand(create)
	return usr
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var email, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUserByEmail(ctx, email)
				if err != nil {
					return fmt.Errorf("user %s: %w", email, err)
				}
				key, plain, err := e.CreateAPIKey(ctx, u.ID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "name": key.Name, "key": plain})
				}
				fmt.Printf("API key %s created. Store it now, it is not shown again:\n%s\n", key.ID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "owner email")
	create.Flags().StringVar(&name, "name", "", "key label")
	_ = create.MarkFlagRequired("email")

	var listEmail string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUserByEmail(ctx, listEmail)
				if err != nil {
					return fmt.Errorf("user %s: %w", listEmail, err)
				}
				items, err := e.Repo.ListAPIKeys(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Name", "Created")
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listEmail, "email", "", "owner email")
	_ = list.MarkFlagRequired("email")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted API key %s\n", args[0])
				return nil
			})
		},
	}

	keys.AddCommand(create, list, del)
	return keys
}

func storeCmd() *cobra.Command {
	st := &cobra.Command{Use: "store", Short: "Manage stores and warehouses"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stores",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stores, err := e.ListStores(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stores)
				}
				tw := newTable("ID", "Name", "City", "Manager", "Phone", "Warehouse")
				for _, s := range stores {
					tw.AppendRow(table.Row{s.ID, s.Name, s.City, s.ManagerName, s.ManagerPhone, s.IsMainWarehouse})
				}
				tw.Render()
				return nil
			})
		},
	}

	var s domain.Store
	set := &cobra.Command{
		Use:   "set <id>",
		Short: "Create or replace a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid store id %q", args[0])
			}
			s.ID = id
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				out, err := e.UpsertStore(ctx, cliActor, s)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	set.Flags().StringVar(&s.Name, "name", "", "store name")
	set.Flags().StringVar(&s.City, "city", "", "city")
	set.Flags().StringVar(&s.Address, "address", "", "address")
	set.Flags().StringVar(&s.ManagerName, "manager-name", "", "manager name")
	set.Flags().StringVar(&s.ManagerPhone, "manager-phone", "", "manager phone")
	set.Flags().BoolVar(&s.IsMainWarehouse, "main-warehouse", false, "mark as a main warehouse")
	_ = set.MarkFlagRequired("name")

	st.AddCommand(list, set)
	return st
}

func routeCmd() *cobra.Command {
	rt := &cobra.Command{
		Use:   "route",
		Short: "Manage delivery routes",
		Long:  "Each weekday (0 = Sunday ... 6 = Saturday) can have one active route listing the store ids it visits, e.g. \"23, 20, 26\".",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				routes, err := e.ListRoutes(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(routes)
				}
				tw := newTable("ID", "Day", "Stores", "Active")
				for _, r := range routes {
					tw.AppendRow(table.Row{r.ID, time.Weekday(r.DayOfWeek), r.Stores, r.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <day>",
		Short: "Show the active route of a weekday",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid day %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.RouteForDay(ctx, day)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}

	var setDay int
	var setStores string
	set := &cobra.Command{
		Use:   "set",
		Short: "Create a route for a weekday",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.CreateRoute(ctx, cliActor, setDay, setStores)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	set.Flags().IntVar(&setDay, "day", 0, "day of week (0 = Sunday)")
	set.Flags().StringVar(&setStores, "stores", "", "comma-separated store ids")
	_ = set.MarkFlagRequired("day")
	_ = set.MarkFlagRequired("stores")

	var upDay int
	var upStores string
	var upActive bool
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid route id %q", args[0])
			}
			var u repo.RouteUpdate
			if cmd.Flags().Changed("day") {
				u.DayOfWeek = &upDay
			}
			if cmd.Flags().Changed("stores") {
				u.Stores = &upStores
			}
			if cmd.Flags().Changed("active") {
				u.IsActive = &upActive
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.UpdateRoute(ctx, cliActor, id, u)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	update.Flags().IntVar(&upDay, "day", 0, "day of week (0 = Sunday)")
	update.Flags().StringVar(&upStores, "stores", "", "comma-separated store ids")
	update.Flags().BoolVar(&upActive, "active", true, "whether the route is used")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a route",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid route id %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteRoute(ctx, cliActor, id); err != nil {
					return err
				}
				fmt.Printf("Deleted route %d\n", id)
				return nil
			})
		},
	}

	rt.AddCommand(list, show, set, update, del)
	return rt
}

func distributeCmd() *cobra.Command {
	var file, date, exclude string
	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Distribute the order lines of a spreadsheet",
		Long:  "Parses an .xlsx or .csv order export and prints the main warehouse lines, the per-store requests with their messages, and the shortages.",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := ingest.ParseFile(file)
			if err != nil {
				return err
			}
			if len(parsed.Lines) == 0 {
				printParseErrors(parsed.Errors)
				return engine.ErrNoValidRows
			}
			opts := engine.ProcessOptions{ExcludedStoreIDs: distribution.ParseStoreIDs(exclude)}
			when := time.Now()
			if date != "" {
				when, err = time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", date)
				}
			}
			opts.DeliveryDate = &when
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, run, err := e.Distribute(ctx, parsed.Lines, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"runId":       run.ID,
						"results":     res,
						"summary":     res.Summary(),
						"parseErrors": parsed.Errors,
					})
				}
				printParseErrors(parsed.Errors)
				printResult(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to the order spreadsheet (.xlsx or .csv)")
	cmd.Flags().StringVar(&date, "date", "", "delivery date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&exclude, "exclude", "", "comma-separated store ids to skip")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func filesCmd() *cobra.Command {
	files := &cobra.Command{Use: "files", Short: "Uploaded files"}
	var email string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the files uploaded by a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUserByEmail(ctx, email)
				if err != nil {
					return fmt.Errorf("user %s: %w", email, err)
				}
				items, err := e.ListFiles(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Filename", "Size", "Status", "Rows", "Uploaded")
				for _, f := range items {
					rows := ""
					if f.TotalRows != nil {
						rows = strconv.Itoa(*f.TotalRows)
					}
					tw.AppendRow(table.Row{f.ID, f.Filename, f.Size, f.Status, rows, f.UploadedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&email, "email", "", "owner email")
	_ = list.MarkFlagRequired("email")
	files.AddCommand(list)
	return files
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that happened: uploads, processing, distribution runs, store and route edits.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor", "Payload")
				for _, evt := range items {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func openEnv(ctx context.Context) (*app.Env, error) {
	return app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Driver:    viper.GetString("db-driver"),
		DSN:       viper.GetString("db-dsn"),
		JWTSecret: viper.GetString("jwt-secret"),
		Logger:    log.Default(),
	})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	env, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env.Engine)
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func printResult(res distribution.Result) {
	fmt.Printf("Main warehouse (%d)\n", len(res.MainWarehouse))
	tw := newTable("Order", "SKU", "Product", "Qty", "Warehouse")
	for _, l := range res.MainWarehouse {
		tw.AppendRow(table.Row{l.OrderID, l.SKU, l.ProductName, l.Quantity, l.WarehouseID})
	}
	tw.Render()

	fmt.Printf("\nStore requests (%d)\n", len(res.StoreRequests))
	tw = newTable("Store", "Name", "Phone", "Units", "Orders")
	for _, r := range res.StoreRequests {
		orders := make([]string, 0, len(r.Items))
		for _, it := range r.Items {
			orders = append(orders, it.OrderID)
		}
		tw.AppendRow(table.Row{r.StoreID, r.StoreName, r.ManagerPhone, len(r.Items), strings.Join(orders, ", ")})
	}
	tw.Render()
	for _, r := range res.StoreRequests {
		fmt.Printf("\n--- %s (%d) ---\n%s\n", r.StoreName, r.StoreID, r.MessageText)
	}

	fmt.Printf("\nInsufficient (%d)\n", len(res.Insufficient))
	tw = newTable("Order", "SKU", "Product", "Qty", "Missing", "Available")
	for _, l := range res.Insufficient {
		tw.AppendRow(table.Row{l.OrderID, l.SKU, l.ProductName, l.Quantity, l.MissingQuantity, distribution.FormatStoreIDs(l.AvailableStoreIDs)})
	}
	tw.Render()
}

func printParseErrors(errs []ingest.ParseError) {
	if len(errs) == 0 {
		return
	}
	fmt.Printf("Skipped rows (%d)\n", len(errs))
	tw := newTable("Row", "Order", "Problem")
	for _, pe := range errs {
		tw.AppendRow(table.Row{pe.Row, pe.ExternalID, pe.Message})
	}
	tw.Render()
	fmt.Println()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
