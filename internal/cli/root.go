// Package cli implements portalctl, the operator command line for the campus portal.
package cli

import (
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/academic"
	"github.com/noah-isme/campus-portal-api/internal/service"
	"github.com/noah-isme/campus-portal-api/pkg/config"
)

// defaultHTTPTimeout bounds every request the commands make, so a server that
// stops answering cannot stall a heartbeat loop.
const defaultHTTPTimeout = 5 * time.Second

// App holds what the commands need. None of it touches the database.
type App struct {
	Config     *config.Config
	Semester   *service.SemesterService
	Ranker     academic.Ranker
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewApp builds the command dependencies from configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, problem := range cfg.Semester.OrderingProblems() {
		logger.Warn("semester calendar out of order", zap.String("problem", problem))
	}
	ranker := academic.NewRanker(cfg.Materials.MidtermRelevanceFloor)
	clock := academic.NewClock(academic.CalendarFromConfig(cfg.Semester), nil)
	return &App{
		Config:     cfg,
		Semester:   service.NewSemesterService(clock, ranker),
		Ranker:     ranker,
		HTTPClient: &http.Client{Timeout: defaultHTTPTimeout},
		Logger:     logger,
	}
}

// NewRootCmd creates the top-level "portalctl" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Operator tools for the campus portal API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newHashPasswordCmd(),
		newSemesterCmd(app),
		newMaterialsCmd(app),
		newPresenceCmd(app),
		newSmokeCmd(app),
	)

	return root
}

func (a *App) serverURL() string {
	port := 8080
	if a.Config != nil && a.Config.Port != 0 {
		port = a.Config.Port
	}
	return "http://localhost:" + strconv.Itoa(port)
}

func (a *App) apiPrefix() string {
	if a.Config != nil && a.Config.APIPrefix != "" {
		return a.Config.APIPrefix
	}
	return "/api/v1"
}
