/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Seednode/giftchain/chain"
	"github.com/sirupsen/logrus"
)

var logger = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: logDate,
	})
	return l
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	logger.Infof(format, args...)
}

func errorf(format string, args ...any) {
	logger.Errorf(format, args...)
}

// userMessage turns an error from a command into text for the screen.
func userMessage(err error) string {
	switch {
	case errors.Is(err, chain.ErrAlreadyStarted):
		return "The chain has already started. Continue with the next person."
	case errors.Is(err, chain.ErrRosterTooSmall):
		return "At least two participants are needed to make a chain."
	case errors.Is(err, chain.ErrEmptyRoster):
		return "Could not find any participants. Copy the rows exactly from the response sheet."
	case errors.Is(err, chain.ErrDuplicateID):
		return "Each participant needs a unique id."
	case errors.Is(err, chain.ErrNotEligible), errors.Is(err, chain.ErrNotYourTurn):
		return "It is not that person's turn yet."
	case errors.Is(err, chain.ErrUnknownParticipant):
		return "That person is not on the roster."
	case errors.Is(err, chain.ErrNotStarted):
		return "Pick a name to start the chain first."
	case errors.Is(err, chain.ErrChainComplete):
		return "The chain is already complete."
	case errors.Is(err, chain.ErrNoAvailableCandidate):
		return "Nobody is left to draw. The session is in an inconsistent state; reset to start over."
	default:
		return err.Error()
	}
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
