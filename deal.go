/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/spf13/cobra"
)

const divider = "# ===================================== #"

// newDealCmd deals a table offline, for games run without the web client.
func newDealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deal",
		Short: "Deal roles to the player names read from stdin, one per line.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := readNames(cmd.InOrStdin())
			if err != nil {
				return err
			}

			return dealTable(cmd.OutOrStdout(), newRand(), names)
		},
	}
}

func readNames(r io.Reader) ([]string, error) {
	var names []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			names = append(names, name)
		}
	}

	return names, scanner.Err()
}

// dealTable prints Merlin's view of the whole table, then every seat's reveal.
func dealTable(w io.Writer, rng *rand.Rand, names []string) error {
	assignment, err := Assign(rng, names)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, assignment.View(Merlin).Text())
	fmt.Fprintf(w, "%s\n\n\n", divider)

	for seat, p := range assignment.Players {
		fmt.Fprintf(w, "%s is [%s]\n", p.Name, p.Role)
		fmt.Fprintln(w, assignment.View(p.Role).TextFor(seat))
		fmt.Fprintln(w, divider)
	}

	return nil
}
