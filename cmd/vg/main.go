package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vigia/internal/app"
	"vigia/internal/config"
	"vigia/internal/db"
	"vigia/internal/domain"
	"vigia/internal/engine"
	"vigia/internal/report"
	"vigia/internal/repo"
	"vigia/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "vg",
	Short: "Vigia CLI",
	Long: `Vigia tracks safety observations on an industrial site.
Observations open as pendiente with a due date (plazo); the semaphore
derives urgency from how much of the window has elapsed (verde, amarillo,
rojo). Closing requires a resolution description and evidence, recorded
atomically. Reports aggregate by area, responsible and period.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("VIGIA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor", "", "acting user (email or DNI)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(obsCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var siteID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default vigia.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(siteID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&siteID, "site", "vigia", "site id")
	return cmd
}

func obsCmd() *cobra.Command {
	obs := &cobra.Command{
		Use:   "obs",
		Short: "Manage observations",
	}
	obs.AddCommand(obsCreateCmd())
	obs.AddCommand(obsListCmd())
	obs.AddCommand(obsShowCmd())
	obs.AddCommand(obsEditCmd())
	obs.AddCommand(obsCloseCmd())
	obs.AddCommand(obsDeleteCmd())
	return obs
}

func obsCreateCmd() *cobra.Command {
	var opts engine.CreateOptions
	var evidenceURL string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open an observation",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Evidence = engine.EvidenceInput{URL: evidenceURL}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				o, err := e.CreateObservation(ctx, actor, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Area, "area", "", "area")
	cmd.Flags().StringVar(&opts.EquipoLugar, "equipo", "", "equipment or place")
	cmd.Flags().StringVar(&opts.Categoria, "categoria", "", "severity (bajo|medio|alto)")
	cmd.Flags().StringVar(&opts.Plazo, "plazo", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.Descripcion, "descripcion", "", "what was observed")
	cmd.Flags().StringVar(&evidenceURL, "evidencia-url", "", "evidence photo URL")
	_ = cmd.MarkFlagRequired("area")
	_ = cmd.MarkFlagRequired("equipo")
	_ = cmd.MarkFlagRequired("categoria")
	_ = cmd.MarkFlagRequired("plazo")
	_ = cmd.MarkFlagRequired("descripcion")
	return cmd
}

func obsListCmd() *cobra.Command {
	var f repo.ObservationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List observations with their semaphore",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListObservations(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Estado", "Semaforo", "Area", "Categoria", "Plazo", "Responsable"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.Estado, v.Semaforo.Label, v.Area, v.Categoria, v.Plazo, v.Responsable})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Estado, "estado", "", "estado filter (pendiente|cerrada)")
	cmd.Flags().StringVar(&f.Area, "area", "", "area filter")
	cmd.Flags().StringVar(&f.Categoria, "categoria", "", "severity filter")
	cmd.Flags().StringVar(&f.CreadoPor, "creado-por", "", "creator email filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func obsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v, err := e.GetObservation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func obsEditCmd() *cobra.Command {
	var area, equipo, categoria, plazo, descripcion, evidenciaURL string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a pending observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts engine.EditOptions
			if cmd.Flags().Changed("area") {
				opts.Area = &area
			}
			if cmd.Flags().Changed("equipo") {
				opts.EquipoLugar = &equipo
			}
			if cmd.Flags().Changed("categoria") {
				opts.Categoria = &categoria
			}
			if cmd.Flags().Changed("plazo") {
				opts.Plazo = &plazo
			}
			if cmd.Flags().Changed("descripcion") {
				opts.Descripcion = &descripcion
			}
			if cmd.Flags().Changed("evidencia-url") {
				opts.Evidence = &engine.EvidenceInput{URL: evidenciaURL}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				o, err := e.EditObservation(ctx, actor, args[0], opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&area, "area", "", "area")
	cmd.Flags().StringVar(&equipo, "equipo", "", "equipment or place")
	cmd.Flags().StringVar(&categoria, "categoria", "", "severity")
	cmd.Flags().StringVar(&plazo, "plazo", "", "due date")
	cmd.Flags().StringVar(&descripcion, "descripcion", "", "description")
	cmd.Flags().StringVar(&evidenciaURL, "evidencia-url", "", "evidence photo URL")
	return cmd
}

func obsCloseCmd() *cobra.Command {
	var descripcion, evidenciaURL string
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a pending observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				o, err := e.CloseObservation(ctx, actor, args[0], engine.CloseOptions{
					Descripcion: descripcion,
					Evidence:    engine.EvidenceInput{URL: evidenciaURL},
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&descripcion, "descripcion", "", "what was done to resolve it")
	cmd.Flags().StringVar(&evidenciaURL, "evidencia-url", "", "closure evidence URL")
	_ = cmd.MarkFlagRequired("descripcion")
	return cmd
}

func obsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a closed observation (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				actor, err := resolveActor(ctx, e)
				if err != nil {
					return err
				}
				if err := e.DeleteObservation(ctx, actor, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userSetRoleCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var u domain.UserProfile
	var password string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.RegisterUser(ctx, u, password)
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&u.Email, "email", "", "email (omit when registering by DNI)")
	cmd.Flags().StringVar(&u.DNI, "dni", "", "document number")
	cmd.Flags().StringVar(&u.Nombre, "nombre", "", "display name")
	cmd.Flags().StringVar(&u.Rol, "rol", domain.RolUser, "role (admin|user)")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("nombre")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Nombre", "Rol"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Nombre, u.Rol})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func userSetRoleCmd() *cobra.Command {
	var rol string
	cmd := &cobra.Command{
		Use:   "set-role <id>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rol != domain.RolAdmin && rol != domain.RolUser {
				return fmt.Errorf("--rol must be admin or user")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.UpdateUserRole(ctx, args[0], rol); err != nil {
					return err
				}
				u, err := e.Repo.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&rol, "rol", "", "role (admin|user)")
	_ = cmd.MarkFlagRequired("rol")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (secret shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, secret, err := e.CreateAPIKey(ctx, userID, name)
				if err != nil {
					return err
				}
				out := map[string]any{"id": key.ID, "user_id": key.UserID, "name": key.Name, "key": secret}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user id")
	cmd.Flags().StringVar(&name, "name", "", "label")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
	return cmd
}

func reportCmd() *cobra.Command {
	rep := &cobra.Command{
		Use:   "report",
		Short: "Aggregations over observations",
	}
	rep.AddCommand(reportResumenCmd())
	rep.AddCommand(reportTopCmd())
	rep.AddCommand(reportSeriesCmd())
	return rep
}

func reportFilterFlags(cmd *cobra.Command, f *report.Filter) {
	cmd.Flags().StringVar(&f.From, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.To, "to", "", "end date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&f.Areas, "area", nil, "area filter (repeatable)")
	cmd.Flags().StringSliceVar(&f.Categories, "categoria", nil, "severity filter (repeatable)")
	cmd.Flags().StringVar(&f.Status, "estado", report.StatusAll, "estado filter (pendiente|cerrada|all)")
}

func reportResumenCmd() *cobra.Command {
	var f report.Filter
	var top int
	cmd := &cobra.Command{
		Use:   "resumen",
		Short: "Dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Summary(ctx, f, top)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	reportFilterFlags(cmd, &f)
	cmd.Flags().IntVar(&top, "top", 5, "ranking size")
	return cmd
}

func reportTopCmd() *cobra.Command {
	var f report.Filter
	var by string
	var top int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Ranking by area or responsable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.Summary(ctx, f, top)
				if err != nil {
					return err
				}
				var ranking report.Ranking
				switch by {
				case "area":
					ranking = s.TopAreas
				case "responsable":
					ranking = s.TopResponsables
				default:
					return fmt.Errorf("--by must be area or responsable")
				}
				if viper.GetBool("json") {
					return printJSON(ranking)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{strings.ToUpper(by), "Pendientes"})
				for _, entry := range ranking.Top {
					tw.AppendRow(table.Row{entry.Label, entry.Count})
				}
				if ranking.Rest > 0 {
					tw.AppendRow(table.Row{"(otros)", ranking.Rest})
				}
				tw.Render()
				return nil
			})
		},
	}
	reportFilterFlags(cmd, &f)
	cmd.Flags().StringVar(&by, "by", "area", "dimension (area|responsable)")
	cmd.Flags().IntVar(&top, "top", 5, "ranking size")
	return cmd
}

func reportSeriesCmd() *cobra.Command {
	var f report.Filter
	var unidad string
	cmd := &cobra.Command{
		Use:   "series",
		Short: "Created and closed counts per period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ts, err := e.Series(ctx, f, report.Unit(unidad))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Periodo", "Creadas", "Cerradas"})
				for i, label := range ts.Labels {
					tw.AppendRow(table.Row{label, ts.Created[i], ts.Closed[i]})
				}
				tw.Render()
				return nil
			})
		},
	}
	reportFilterFlags(cmd, &f)
	cmd.Flags().StringVar(&unidad, "unidad", "day", "bucket unit (day|week|month)")
	return cmd
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
	}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, evtType, "", entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCtx, err := app.Open(cmd.Context(), viper.GetString("workspace"))
			if err != nil {
				return err
			}
			defer appCtx.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("VIGIA_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("VIGIA_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: appCtx.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Vigia API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	appCtx, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer appCtx.Close()
	return fn(ctx, appCtx.Engine)
}

// resolveActor maps --actor (email or DNI) to a stored profile.
func resolveActor(ctx context.Context, e engine.Engine) (domain.Actor, error) {
	login := viper.GetString("actor")
	if login == "" {
		return domain.Actor{}, fmt.Errorf("--actor (email or DNI) is required for this command")
	}
	u, err := e.Repo.GetUserByEmail(ctx, engine.NormalizeLogin(login))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Actor{}, fmt.Errorf("unknown actor %q; register with vg user add", login)
		}
		return domain.Actor{}, err
	}
	return domain.Actor{ID: u.ID, Email: u.Email, Rol: u.Rol}, nil
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
