// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/wneessen/mapstate/internal/logger"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidIndex   = errors.New("invalid result index")
)

// readCommands executes one command per line of r until r is exhausted or ctx is done.
func (s *Service) readCommands(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.execute(line); err != nil {
			s.logger.Warn("failed to execute command", slog.String("command", line), logger.Err(err))
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Error("failed to read commands", logger.Err(err))
	}
}

// execute runs a single command line:
//
//	start | stop | permission | query <text> | search [text] | select <n> | clear | refresh
func (s *Service) execute(line string) error {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "start":
		s.wantUpdates.Store(true)
		return s.facade.StartUpdates()
	case "stop":
		s.wantUpdates.Store(false)
		return s.facade.StopUpdates()
	case "permission":
		return s.facade.RequestPermission()
	case "query":
		return s.facade.SetQuery(arg)
	case "search":
		if arg != "" {
			if err := s.facade.SetQuery(arg); err != nil {
				return err
			}
		}
		return s.facade.Search()
	case "select":
		return s.selectResult(arg)
	case "clear":
		return s.facade.Clear()
	case "refresh":
		return s.facade.RefreshAddress()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

// selectResult selects the search result at the 1-based index arg.
func (s *Service) selectResult(arg string) error {
	idx, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidIndex, arg)
	}
	results := s.facade.State().Search.Results
	if idx < 1 || idx > len(results) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidIndex, idx, len(results))
	}
	return s.facade.SelectPlace(results[idx-1].ID())
}
