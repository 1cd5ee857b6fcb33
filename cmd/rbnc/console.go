package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dalnet/rbnc/internal/model"
)

// submitter is the part of the dispatcher the console needs
type submitter interface {
	Submit(ctx context.Context, buffer model.BufferID, line string) error
}

// parseConsoleLine splits "<buffer id> <text>". The text is kept verbatim.
func parseConsoleLine(raw string) (model.BufferID, string, error) {
	raw = strings.TrimRight(raw, "\r\n")
	idPart, text, _ := strings.Cut(strings.TrimLeft(raw, " \t"), " ")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", fmt.Errorf("expected '<buffer id> <line>', got %q", raw)
	}
	return model.BufferID(id), text, nil
}

// runConsole feeds stdin lines to the dispatcher until r is exhausted or ctx
// is done
func runConsole(ctx context.Context, r io.Reader, d submitter, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}

		buffer, text, err := parseConsoleLine(scanner.Text())
		if err != nil {
			logger.Warn("Bad console input", zap.Error(err))
			continue
		}
		if err := d.Submit(ctx, buffer, text); err != nil {
			logger.Warn("Submit failed", zap.Int64("buffer", int64(buffer)), zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Console read failed", zap.Error(err))
	}
}
