package main

import (
	"context"
	"fmt"
)

// createGroups makes sure every classroom has its group conversation, seeded
// with the teacher and the parents of its students. Safe to run repeatedly.
func (cli *commandLine) createGroups() error {
	n, err := cli.msgSvc.EnsureGroupConversations(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%d group conversation(s) created\n", n)
	return nil
}
