package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mcdev12/alias/go/internal/config"
	"github.com/mcdev12/alias/go/internal/game"
	"github.com/mcdev12/alias/go/internal/game/timer"
	"github.com/mcdev12/alias/go/internal/identity"
	"github.com/mcdev12/alias/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const helpText = `commands:
  create            create a room and join it
  join CODE         join a room
  leave             leave the room
  team NAME         claim a team slot
  start             start your team's round
  ok | skip         record the word as guessed or skipped
  draw              draw a new word after a failed fetch
  end               end your turn early
  pause             pause or resume the round
  duration N        set the round length in seconds (60-180)
  cat TAG           toggle a category (A2, B1, B2, API)
  new               new game with the same teams
  reset             clear the teams
  status | history  show the room or the words played
  hint              show the hint for your word
  qr                print the room's share image link
  quit`

func newPlayCmd(flags *Flags) *cobra.Command {
	var join string

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play in a room from this terminal.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			playerID, err := resolvePlayerID(cfg, flags)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			services, err := setupServices(ctx, cfg, playerID)
			if err != nil {
				return err
			}
			defer services.Close()

			if flags.metricsAddr != "" {
				serveUntilDone(ctx, setupMetricsServer(flags.metricsAddr, services.Registry))
			}

			p := newPlayer(services, cfg, cmd.OutOrStdout())
			go services.App.NewTicker(cfg.Game.TickInterval, p.onTick).Run(ctx)

			if join != "" {
				if _, err := p.exec(ctx, "join "+join); err != nil {
					return err
				}
			}
			return p.loop(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&join, "join", "j", "", "room code to join on start")
	return cmd
}

func newWhoamiCmd(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print this device's player id.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			id, err := resolvePlayerID(cfg, flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func resolvePlayerID(cfg *config.Config, flags *Flags) (string, error) {
	if flags.playerID != "" {
		return flags.playerID, nil
	}
	path := cfg.Player.IDFile
	if path == "" {
		var err error
		if path, err = identity.DefaultPath(); err != nil {
			return "", err
		}
	}
	return identity.NewFileStore(path).PlayerID()
}

// player is the line-oriented front end over one client's services.
type player struct {
	services *Services
	cfg      *config.Config

	mu        sync.Mutex
	out       io.Writer
	lastTick  int
	lastPhase models.Phase
	lastTeam  int
}

func newPlayer(services *Services, cfg *config.Config, out io.Writer) *player {
	p := &player{services: services, cfg: cfg, out: out, lastTick: -1, lastPhase: models.PhaseIdle}
	services.Store.OnChange(p.onChange)
	return p
}

func (p *player) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *player) loop(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	p.printf("player %s, type help for commands\n", p.services.Store.PlayerID())
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := p.exec(ctx, line)
			if err != nil {
				p.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// exec runs one command line. Rule violations are reported, not returned.
func (p *player) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	app := p.services.App
	name := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))

	switch name {
	case "help", "?":
		p.printf("%s\n", helpText)
	case "create":
		code, err := p.services.Lobby.Create(ctx)
		if err != nil {
			return false, err
		}
		p.printf("created room %s\n", code)
	case "join":
		if arg == "" {
			return false, errors.New("usage: join CODE")
		}
		if err := p.services.Lobby.Join(ctx, arg); err != nil {
			return false, err
		}
		p.status()
	case "leave":
		if err := p.services.Lobby.Leave(); err != nil {
			return false, err
		}
		p.printf("left the room\n")
	case "team":
		if err := p.services.Lobby.Claim(arg); err != nil {
			return false, err
		}
	case "start":
		ok, err := app.StartRound(ctx)
		if err != nil {
			return false, err
		}
		p.report(ok)
	case "ok", "skip":
		res, err := app.RecordOutcome(ctx, name == "ok")
		if err != nil {
			return false, err
		}
		p.report(res != game.RecordRejected)
	case "draw":
		return false, app.DrawWord(ctx)
	case "end":
		p.report(app.EndTurn())
	case "pause":
		p.report(app.TogglePause())
	case "duration":
		seconds, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("invalid duration %q", arg)
		}
		p.report(app.SetRoundDuration(seconds))
	case "cat":
		p.report(app.ToggleCategory(strings.ToUpper(arg)))
	case "new":
		p.report(app.NewRound())
	case "reset":
		p.report(app.ResetAll())
	case "status":
		p.status()
	case "history":
		p.mu.Lock()
		renderHistory(p.out, p.services.Store.Snapshot())
		p.mu.Unlock()
	case "hint":
		p.hint()
	case "qr":
		p.qr()
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, type help", fields[0])
	}
	return false, nil
}

func (p *player) report(applied bool) {
	if !applied {
		p.printf("not allowed right now\n")
	}
}

func (p *player) status() {
	snap := p.services.Store.Snapshot()
	p.mu.Lock()
	defer p.mu.Unlock()
	render(p.out, snap, p.services.Store.PlayerID(), timer.Remaining(snap, time.Now()))
}

func (p *player) hint() {
	store := p.services.Store
	snap := store.Snapshot()
	if !store.IsMyTurn() || snap.CurrentWord == nil {
		p.printf("no word of yours on the card\n")
		return
	}
	if snap.CurrentWord.Hint == "" {
		p.printf("no hint for this word\n")
		return
	}
	p.printf("hint: %s\n", snap.CurrentWord.Hint)
}

func (p *player) qr() {
	code := p.services.Store.RoomCode()
	if code == "" {
		p.printf("not in a room\n")
		return
	}
	if p.cfg.Backend.Kind != config.BackendRelay {
		p.printf("room code: %s\n", code)
		return
	}
	p.printf("%s/rooms/%s/qr.png\n", strings.TrimRight(p.cfg.Backend.RelayURL, "/"), code)
}

// onTick announces the countdown every ten seconds and for the last five.
func (p *player) onTick(remaining int) {
	if p.services.Store.Phase() != models.PhaseRunning {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if remaining == p.lastTick {
		return
	}
	p.lastTick = remaining
	if remaining%10 == 0 || remaining <= 5 {
		fmt.Fprintf(p.out, "time left: %ds\n", remaining)
	}
}

// onChange announces phase and turn changes, local or remote.
func (p *player) onChange(s models.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	phase := s.Phase()
	if phase == p.lastPhase && s.CurrentTeamIndex == p.lastTeam {
		return
	}
	p.lastPhase, p.lastTeam = phase, s.CurrentTeamIndex

	switch phase {
	case models.PhaseRunning:
		fmt.Fprintln(p.out, "round running")
	case models.PhasePaused:
		fmt.Fprintln(p.out, "round paused")
	case models.PhaseOvertime:
		fmt.Fprintln(p.out, "time is up, last word")
	case models.PhaseIdle:
		if t := s.ActiveTeam(); t != nil {
			fmt.Fprintf(p.out, "next up: %s\n", t.Name)
		}
	}
	log.Debug().Str("room_code", s.RoomCode).Str("phase", string(phase)).Msg("session changed")
}
