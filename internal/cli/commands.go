package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"farmacia/client/internal/apiclient"
	"farmacia/client/internal/app"
	"farmacia/client/internal/logging"
	"farmacia/client/internal/notify"
	"farmacia/client/internal/state"
	"farmacia/client/internal/ui/present"
)

var errNotAuthenticated = errors.New("não autenticado: execute 'farmacia login'")

// withCore runs fn against a headless core. Notifications are printed to
// stderr as they appear.
func withCore(cmd *cobra.Command, configPath string, fn func(ctx context.Context, core *app.Core) error) error {
	ctx, cfg, cleanup, err := Setup(cmd.Context(), configPath)
	if err != nil {
		return err
	}
	defer cleanup()
	logger, _ := logging.FromContext(ctx)
	core, err := app.NewCore(cfg, logger, app.CoreOptions{})
	if err != nil {
		return err
	}
	defer core.Close()
	unsubscribe := core.Notices.Subscribe(printNotice(cmd.ErrOrStderr()))
	defer unsubscribe()
	return fn(notify.WithContext(ctx, core.Notices), core)
}

func printNotice(w io.Writer) func(notify.Notification) {
	return func(n notify.Notification) {
		if n.Visible && n.Message != "" {
			fmt.Fprintf(w, "[%s] %s\n", n.Kind, n.Message)
		}
	}
}

func loginCmd(configPath *string) *cobra.Command {
	var email, senha string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Autentica e guarda a sessão",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if senha == "" {
				senha = os.Getenv("FARMACIA_SENHA")
			}
			if strings.TrimSpace(email) == "" || senha == "" {
				return errors.New(state.MsgMissingLogin)
			}
			return withCore(cmd, *configPath, func(ctx context.Context, core *app.Core) error {
				result, err := core.Login(ctx, email, senha)
				if err != nil {
					_ = notify.Show(ctx, notify.KindError, apiclient.UserMessage(err, state.MsgLoginFailed))
					return err
				}
				_ = notify.Show(ctx, notify.KindSuccess, state.MsgLoginSuccess)
				if result.User != nil {
					fmt.Fprintln(cmd.OutOrStdout(), present.UserCaption(result.User))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email de acesso")
	cmd.Flags().StringVar(&senha, "senha", "", "senha (ou FARMACIA_SENHA)")
	return cmd
}

func logoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Encerra a sessão guardada",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd, *configPath, func(ctx context.Context, core *app.Core) error {
				if err := core.Logout(); err != nil {
					return err
				}
				return notify.Show(ctx, notify.KindSuccess, state.MsgLogoutSuccess)
			})
		},
	}
}

func whoamiCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Mostra o usuário da sessão",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd, *configPath, func(_ context.Context, core *app.Core) error {
				if !core.Authenticated() {
					return errNotAuthenticated
				}
				user, ok := core.CurrentUser()
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "autenticado (perfil não informado pelo servidor)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), present.UserCaption(user))
				if user.Email != "" {
					fmt.Fprintln(cmd.OutOrStdout(), user.Email)
				}
				return nil
			})
		},
	}
}

func listCmd(configPath *string) *cobra.Command {
	var query string
	valid := make([]string, 0, len(state.Resources))
	for _, res := range state.Resources {
		valid = append(valid, string(res))
	}
	cmd := &cobra.Command{
		Use:       "list <recurso>",
		Short:     "Lista registros: " + strings.Join(valid, ", "),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: valid,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := state.Resource(args[0])
			return withCore(cmd, *configPath, func(ctx context.Context, core *app.Core) error {
				if !core.Authenticated() {
					return errNotAuthenticated
				}
				var recs state.Records
				// linked names (a patient's pharmacist, a treatment's patient)
				// are resolved from their own lists
				if related, ok := listRelations[res]; ok {
					if err := loadInto(ctx, core, &recs, related); err != nil {
						return err
					}
				}
				if err := loadInto(ctx, core, &recs, res); err != nil {
					if apiclient.IsUnauthenticated(err) {
						_ = notify.Show(ctx, notify.KindWarning, state.MsgSessionExpired)
					}
					return err
				}
				return writeRows(cmd.OutOrStdout(), present.RowsFor(&recs, res, query))
			})
		},
	}
	cmd.Flags().StringVar(&query, "busca", "", "filtra por nome, CPF, email...")
	return cmd
}

var listRelations = map[state.Resource]state.Resource{
	state.ResourcePaciente:   state.ResourceFarmaceutico,
	state.ResourceTratamento: state.ResourcePaciente,
}

func prescribeCmd(configPath *string) *cobra.Command {
	var (
		paciente     string
		medicamentos []string
	)
	cmd := &cobra.Command{
		Use:   "prescrever",
		Short: "Inicia um tratamento por medicamento para um paciente",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd, *configPath, func(ctx context.Context, core *app.Core) error {
				if !core.Authenticated() {
					return errNotAuthenticated
				}
				var recs state.Records
				if err := loadInto(ctx, core, &recs, state.ResourceMedicamento); err != nil {
					return err
				}
				checked := make([]string, 0, len(medicamentos))
				for _, id := range medicamentos {
					checked = append(checked, "#"+strings.TrimSpace(id))
				}
				payload, err := present.PrescriptionFrom(&recs, "#"+strings.TrimSpace(paciente), checked)
				if err != nil {
					return err
				}
				if len(payload.Medicamentos) != len(medicamentos) {
					return fmt.Errorf("medicamento não encontrado: %s", strings.Join(missingMedicamentos(payload.Medicamentos, medicamentos), ", "))
				}
				created, err := core.Prescribe(ctx, payload.PacienteID, payload.Medicamentos)
				fmt.Fprintf(cmd.OutOrStdout(), "%d de %d tratamentos criados\n", created, len(payload.Medicamentos))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&paciente, "paciente", "", "id do paciente")
	cmd.Flags().StringSliceVar(&medicamentos, "medicamento", nil, "ids dos medicamentos (repetível)")
	_ = cmd.MarkFlagRequired("paciente")
	_ = cmd.MarkFlagRequired("medicamento")
	return cmd
}

func missingMedicamentos(found []state.Medicamento, wanted []string) []string {
	have := make(map[string]bool, len(found))
	for _, med := range found {
		have[med.ID] = true
	}
	var missing []string
	for _, id := range wanted {
		id = strings.TrimSpace(id)
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func loadInto(ctx context.Context, core *app.Core, recs *state.Records, res state.Resource) error {
	list, err := core.List(ctx, res)
	if err != nil {
		return err
	}
	switch v := list.(type) {
	case []state.Paciente:
		recs.Pacientes = v
	case []state.Medicamento:
		recs.Medicamentos = v
	case []state.Farmaceutico:
		recs.Farmaceuticos = v
	case []state.Tratamento:
		recs.Tratamentos = v
	}
	return nil
}

func writeRows(w io.Writer, rows []present.Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNOME\tDETALHES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Title, r.Detail)
	}
	return tw.Flush()
}
