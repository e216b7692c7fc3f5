package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/Klingon-tech/cellwallet/internal/cosign"
	"github.com/Klingon-tech/cellwallet/internal/storage"
)

func cmdCosign(a *app, args []string) {
	if len(args) < 1 {
		fatal("Usage: cellwallet-cli cosign <listen|publish> [flags]")
	}
	switch args[0] {
	case "listen":
		cmdCosignListen(a)
	case "publish":
		cmdCosignPublish(a, args[1:])
	default:
		fatal("Unknown cosign command: %s", args[0])
	}
}

func (a *app) cosignNode() *cosign.Node {
	c := a.cfg.Cosign
	n := cosign.New(cosign.Config{
		ListenAddr: c.ListenAddr,
		Port:       c.Port,
		Peers:      c.Peers,
		Network:    string(a.cfg.Network),
		NoDiscover: c.NoDiscover,
		DB:         storage.NewPrefixDB(a.db, storage.NSCosigners),
		DataDir:    a.cfg.CosignDir(),
	})
	if err := n.Start(); err != nil {
		fatal("start relay: %v", err)
	}
	return n
}

func cmdCosignListen(a *app) {
	n := a.cosignNode()
	defer n.Stop()
	n.SetPayloadHandler(a.sessions.Handle)

	fmt.Println("Listening for co-signing payloads on:")
	for _, addr := range n.Addrs() {
		fmt.Printf("  %s\n", addr)
	}
	ctx, cancel := a.ctx()
	defer cancel()
	<-ctx.Done()
	fmt.Println("Stopping relay")
}

func cmdCosignPublish(a *app, args []string) {
	fs := flag.NewFlagSet("cosign publish", flag.ExitOnError)
	hash := fs.String("tx", "", "Transaction hash of a recorded session")
	wait := fs.Duration("wait", 3*time.Second, "Time to find peers before publishing")
	fs.Parse(args)

	if *hash == "" {
		fatal("Usage: cellwallet-cli cosign publish --tx <hash>")
	}
	p := a.session(*hash)
	n := a.cosignNode()
	defer n.Stop()

	ctx, cancel := a.ctx()
	defer cancel()
	deadline := time.Now().Add(*wait)
	for n.PeerCount() == 0 && time.Now().Before(deadline) && ctx.Err() == nil {
		time.Sleep(100 * time.Millisecond)
	}
	if n.PeerCount() == 0 {
		fatal("no co-signers reachable")
	}
	// Let GossipSub form a mesh with the new peers.
	time.Sleep(500 * time.Millisecond)
	if err := n.Publish(ctx, p); err != nil {
		fatal("publish: %v", err)
	}
	fmt.Printf("Published %s to %d peer(s)\n", p.Transaction.Hash(), n.PeerCount())
}
