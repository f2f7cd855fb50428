package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/manufacturing_backend/actions"
	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/mmdatafocus/manufacturing_backend/models"
	"github.com/mmdatafocus/manufacturing_backend/utils"
)

// Runs one manufacturing action and prints its JSON result, e.g.
//
//	manufacturing-cli -action explode-bom -input '{"bom_id":1,"quantity":"10"}'
//	echo '{"production_plan_id":3}' | manufacturing-cli -action run-mrp -input -
func main() {
	action := flag.String("action", "", "Required: action name (see -list)")
	input := flag.String("input", "", "Optional: JSON input, or - to read it from stdin")
	user := flag.String("user", "cli", "Optional: user name recorded in history")
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before the action")
	list := flag.Bool("list", false, "List actions and exit")
	flag.Parse()

	if *list {
		fmt.Println(strings.Join(actions.Names(), "\n"))
		return
	}
	if strings.TrimSpace(*action) == "" {
		fmt.Fprintln(os.Stderr, "--action is required")
		os.Exit(1)
	}

	payload := []byte(strings.TrimSpace(*input))
	if *input == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
			os.Exit(1)
		}
		payload = data
	}
	if len(payload) > 0 && !json.Valid(payload) {
		fmt.Fprintln(os.Stderr, "--input must be JSON")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if *migrate {
		models.MigrateTable()
	}

	ctx := utils.SetUserNameInContext(context.Background(), *user)
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())
	result, err := actions.Run(ctx, *action, payload)
	if err != nil {
		out, _ := json.Marshal(map[string]string{"status": "error", "error": err.Error()})
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(1)
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
