// IdeaRoom CLI - Command line client for IdeaRoom canvas rooms
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/VampKunal/IdeaRoom/clients/go/roomclient"
	"github.com/VampKunal/IdeaRoom/internal/models"
	"github.com/VampKunal/IdeaRoom/internal/protocol"
)

func main() {
	if len(os.Args) < 3 {
		usage()
		os.Exit(1)
	}

	url := os.Getenv("IDEAROOM_URL")
	if url == "" {
		url = "ws://localhost:8080/ws"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := roomclient.Dial(dialCtx, url, os.Getenv("IDEAROOM_TOKEN"))
	cancel()
	exitOnError(err)
	defer client.Close()

	cmd, roomID := os.Args[1], os.Args[2]

	joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	state, err := client.JoinState(joinCtx, roomID)
	cancel()
	exitOnError(err)

	switch cmd {
	case "state":
		printJSON(state)

	case "watch":
		fmt.Printf("joined %s (%d objects), watching...\n", roomID, len(state.Objects))
		started := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-client.Events():
				if !ok {
					exitOnError(client.Err())
					return
				}
				fmt.Printf("  [%s] %-16s %s\n", humanize.Time(started), env.Type, humanize.Bytes(uint64(len(env.Data))))
			}
		}

	case "note":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: idearoom note <room_id> <label> [x] [y]")
			os.Exit(1)
		}
		obj := models.Object{
			ID:   uuid.NewString(),
			Type: models.TypeNode,
			X:    argFloat(4),
			Y:    argFloat(5),
			Data: models.NodeData{Label: os.Args[3]},
		}
		exitOnError(client.Create(obj))

		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, err := client.Wait(waitCtx, protocol.ObjectCreated)
		exitOnError(err)
		fmt.Printf("created %s\n", obj.ID)

	case "undo":
		exitOnError(client.Undo())
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		// Nothing arrives when the undo stack is empty.
		if _, err := client.Wait(waitCtx, protocol.RoomState); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			exitOnError(err)
		}
		fmt.Println("undone")

	default:
		usage()
		os.Exit(1)
	}
}

func argFloat(i int) float64 {
	if len(os.Args) <= i {
		return 0
	}
	f, err := strconv.ParseFloat(os.Args[i], 64)
	exitOnError(err)
	return f
}

func usage() {
	fmt.Println(`IdeaRoom CLI - realtime canvas client

Usage: idearoom <command> <room_id> [options]

Commands:
  state <room_id>                    Print the current canvas
  watch <room_id>                    Stream room events
  note <room_id> <label> [x] [y]     Add a sticky note
  undo <room_id>                     Undo the room's last change

Environment:
  IDEAROOM_URL    Websocket URL (default: ws://localhost:8080/ws)
  IDEAROOM_TOKEN  Bearer token from cmd/token`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
