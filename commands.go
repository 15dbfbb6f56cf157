/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type command struct {
	verb string
	arg  string
}

// parseCommand splits a line into its verb and the trimmed rest of the line.
func parseCommand(text string) command {
	verb, arg, _ := strings.Cut(strings.TrimSpace(text), " ")

	return command{verb: verb, arg: strings.TrimSpace(arg)}
}

// handleText runs one inbound line. Only a cancelled session returns an error.
func (s *session) handleText(ctx context.Context, text string) error {
	cmd := parseCommand(text)

	switch cmd.verb {
	case "/list":
		rooms, err := s.coord.ListRooms(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("Failed to list rooms", zap.Error(err))
			return nil
		}
		for _, name := range rooms {
			if err := s.reply(ctx, name); err != nil {
				return err
			}
		}
		return nil

	case "/name":
		if cmd.arg == "" {
			return s.reply(ctx, "!!! name is required")
		}
		s.name = cmd.arg
		return nil

	case "/join":
		switch {
		case s.name == "":
			return s.reply(ctx, "!!! session name is required")
		case cmd.arg == "":
			return s.reply(ctx, "!!! room name is required")
		}
		return s.forward(ctx, s.coord.Join(ctx, s.id, s.name, cmd.arg))

	case "/create":
		switch {
		case s.name == "":
			return s.reply(ctx, "!!! session name is required")
		case cmd.arg == "":
			return s.reply(ctx, "!!! size is required")
		}

		size, err := strconv.Atoi(cmd.arg)
		if err != nil {
			return s.reply(ctx, fmt.Sprintf("!!! invalid room size: %s", cmd.arg))
		}
		if size < minPlayers || size > maxPlayers {
			return s.reply(ctx, sizeNotSupported(size))
		}
		return s.forward(ctx, s.coord.Create(ctx, s.id, s.name, size))

	default:
		return s.reply(ctx, fmt.Sprintf("!!! unknown command: %q", cmd.verb))
	}
}

func (s *session) forward(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Warn("Failed to reach coordinator", zap.Error(err))

	return nil
}
