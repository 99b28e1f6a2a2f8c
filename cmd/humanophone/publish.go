package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/humanophone/humanophone/internal/client"
	"github.com/humanophone/humanophone/internal/config"
	"github.com/humanophone/humanophone/internal/sequencer"
)

func publishCmd(flags *globalFlags) *cobra.Command {
	var (
		cf       clientFlags
		songFile string
		loops    int
		template bool
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Play a song into a relay",
		Long: `Connect to a relay as a publisher and play a song on a loop.

Each chord is held for publisher.interval, followed by silence for
publisher.silence_gap. Without a song file the built-in progression
Gm11 C9 F6/9 is played.

Examples:
  humanophone publish
  humanophone publish --song changes.yaml --loops 4
  humanophone publish --template > changes.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if template {
				return sequencer.WriteTemplate(cmd.OutOrStdout())
			}
			cfg, err := loadConfig(cmd, flags, func(cfg *config.Config) {
				cf.apply(cmd, cfg)
				if cmd.Flags().Changed("song") {
					cfg.Publisher.SongFile = songFile
				}
			})
			if err != nil {
				return err
			}
			return runPublish(cfg, loops)
		},
	}

	cf.register(cmd)
	cmd.Flags().StringVar(&songFile, "song", "", "YAML song file (default from config)")
	cmd.Flags().IntVar(&loops, "loops", 0, "Passes through the song, 0 to repeat forever")
	cmd.Flags().BoolVar(&template, "template", false, "Print the default song as YAML and exit")

	return cmd
}

func runPublish(cfg *config.Config, loops int) error {
	logger, closeLog, err := initLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	song := sequencer.DefaultSong()
	if cfg.Publisher.SongFile != "" {
		if song, err = sequencer.LoadSong(cfg.Publisher.SongFile); err != nil {
			return err
		}
	}

	opts := sequencer.NewOptions(cfg.Publisher, logger)
	opts.Loops = loops
	seq, err := sequencer.New(song, opts)
	if err != nil {
		return fmt.Errorf("song %q: %w", song.Title, err)
	}

	url, err := client.ResolveURL(cfg.Client.URL, cfg.Client.TLS.Enabled)
	if err != nil {
		return err
	}
	cfg.Client.URL = url
	cfg.Client.ID = clientID(cfg, "publisher")

	dialer, err := client.NewDialer(cfg.Client)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go seq.Run(ctx)

	logger.Info("publishing", "song", song.Title, "chords", seq.Len(), "url", url, "id", cfg.Client.ID)
	sup := client.NewSupervisor(cfg.Client.Reconnect, nil, logger)
	err = sup.Run(ctx, client.PublisherAttempt(dialer, client.NewOptions(cfg, logger), seq))
	if ctx.Err() != nil {
		return nil
	}
	return err
}
