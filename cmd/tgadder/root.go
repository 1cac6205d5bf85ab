package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tgadder/internal/app"
	"tgadder/internal/config"
	logx "tgadder/pkg/logx"
)

type flags struct {
	config     string
	group      string
	excelURL   string
	excelPath  string
	phoneCol   string
	nameCol    string
	region     string
	inviteLink string
	ledger     string
	daily      bool
	at         string
}

var opts flags

// Set with -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:           "tgadder",
	Short:         "Add phone numbers from a spreadsheet to a Telegram group",
	Long:          "Imports each phone number as a contact, adds it to the group, and sends an invite DM when privacy settings block the add. Every row is logged.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.New(newManager(cmd))
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Config().Schedule.Enabled {
			return a.Daemon(cmd.Context())
		}
		_, err = a.RunOnce(cmd.Context())
		return err
	},
}

var checkCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Load and validate the configuration, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfgm := newManager(cmd)
		cfg, err := cfgm.Parse()
		if err != nil {
			return err
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}
		log := logx.NewConsole(cfg.Logging.Level)
		log.Info("config ok",
			logx.String("group", cfg.Group.Target),
			logx.String("storage", cfg.Storage.Driver+":"+cfg.Storage.Path),
			logx.Bool("scheduled", cfg.Schedule.Enabled),
		)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.config, "config", "", "path to a JSON or YAML config file")
	f.StringVar(&opts.group, "group", "", "target group: invite link, @username, t.me link or numeric id")
	f.StringVar(&opts.excelURL, "excel-url", "", "download the spreadsheet from this URL")
	f.StringVar(&opts.excelPath, "excel-path", "", "local spreadsheet, CSV or text file")
	f.StringVar(&opts.phoneCol, "phone-col", "", "phone column header")
	f.StringVar(&opts.nameCol, "name-col", "", "optional first-name column header")
	f.StringVar(&opts.region, "region", "", "default region for numbers without a country code, e.g. US")
	f.StringVar(&opts.inviteLink, "invite-link", "", "invite link to put in DMs")
	f.StringVar(&opts.ledger, "log-file", "", "ledger output path")
	f.BoolVar(&opts.daily, "daily", false, "keep running and repeat every day")
	f.StringVar(&opts.at, "at", "03:00", "time of day for --daily (HH:MM, local time), or any cron spec")

	rootCmd.AddCommand(checkCmd)
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

// newManager builds the config manager with command-line flags applied last.
func newManager(cmd *cobra.Command) *config.Manager {
	cfgm := config.NewManager(opts.config)
	changed := cmd.Flags().Changed
	set := func(name string, dst *string, v string) {
		if changed(name) {
			*dst = strings.TrimSpace(v)
		}
	}
	cfgm.AddOverride(func(c *config.Config) {
		set("group", &c.Group.Target, opts.group)
		set("excel-url", &c.Source.URL, opts.excelURL)
		set("excel-path", &c.Source.Path, opts.excelPath)
		set("phone-col", &c.Source.PhoneColumn, opts.phoneCol)
		set("name-col", &c.Source.NameColumn, opts.nameCol)
		set("region", &c.Source.Region, opts.region)
		set("invite-link", &c.Group.InviteLink, opts.inviteLink)
		set("log-file", &c.Storage.Path, opts.ledger)
		if changed("daily") {
			c.Schedule.Enabled = opts.daily
		}
		if changed("at") || (opts.daily && strings.TrimSpace(c.Schedule.Spec) == "") {
			c.Schedule.Spec = strings.TrimSpace(opts.at)
		}
	})
	return cfgm
}
