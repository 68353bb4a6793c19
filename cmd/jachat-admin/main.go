package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/justachat/jachat-services/audit"
	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/moderation"
	"github.com/justachat/jachat-services/persistence"
	"github.com/justachat/jachat-services/types"
)

// A very simple CLI tool for the administration of users, channels, k-lines
// and the audit log.

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
)

// cliContext is the command context moderation operations run under. The
// CLI always acts with owner authority.
func cliContext() *types.CommandContext {
	return &types.CommandContext{
		Caller: &types.User{Id: "jachat-admin", Nick: "jachat-admin"},
		Role:   types.RoleOwner,
	}
}

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	sink := audit.NewSink(persister)
	engine := moderation.NewEngine(persister, sink)

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show users, channels, k-lines or the audit log",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Show: " + strings.Join(args, " "))
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `shows a listing of all known users.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			users, err := persister.GetUsers()
			if err != nil {
				globals.AppLogger.Error("could not get users", "error", err)
				return
			}
			u, err := json.Marshal(users)
			if err != nil {
				globals.AppLogger.Error("could not marshal users", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given id.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := persister.GetUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not get user", "error", err)
				return
			}
			u, err := json.Marshal(user)
			if err != nil {
				globals.AppLogger.Error("could not marshal user", "error", err)
				return
			}
			fmt.Println(string(u))
		},
	}
	var cmdShowChannels = &cobra.Command{
		Use:   "channels",
		Short: "Show channels",
		Long:  `shows a listing of all channels.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			channels, err := persister.GetChannels()
			if err != nil {
				globals.AppLogger.Error("could not get channels", "error", err)
				return
			}
			c, err := json.Marshal(channels)
			if err != nil {
				globals.AppLogger.Error("could not marshal channels", "error", err)
				return
			}
			fmt.Println(string(c))
		},
	}
	var cmdShowKlines = &cobra.Command{
		Use:   "klines",
		Short: "Show k-lines",
		Long:  `shows all k-lines including expired ones.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			klines, err := persister.GetKlines()
			if err != nil {
				globals.AppLogger.Error("could not get k-lines", "error", err)
				return
			}
			k, err := json.Marshal(klines)
			if err != nil {
				globals.AppLogger.Error("could not marshal k-lines", "error", err)
				return
			}
			fmt.Println(string(k))
		},
	}
	var cmdShowAudit = &cobra.Command{
		Use:   "audit [limit]",
		Short: "Show the audit log",
		Long:  `shows the newest audit log entries, newest first. The default limit is 50.`,
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			limit := 50
			if len(args) > 0 {
				if l, err := strconv.Atoi(args[0]); err == nil && l > 0 {
					limit = l
				}
			}
			entries, err := persister.GetAuditEntries(limit)
			if err != nil {
				globals.AppLogger.Error("could not get audit entries", "error", err)
				return
			}
			a, err := json.Marshal(entries)
			if err != nil {
				globals.AppLogger.Error("could not marshal audit entries", "error", err)
				return
			}
			fmt.Println(string(a))
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "delete channel or user",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Delete: " + strings.Join(args, " "))
		},
	}
	var cmdDeleteChannel = &cobra.Command{
		Use:   "channel [channel id]",
		Short: "Delete channel",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			channel := types.Channel{Id: args[0]}
			err := persister.DeleteChannel(&channel)
			if err != nil {
				globals.AppLogger.Error("could not delete channel", "error", err)
				return
			}
		},
	}
	var cmdDeleteUser = &cobra.Command{
		Use:   "user [user id]",
		Short: "Delete user",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			user := types.User{Id: args[0]}
			err := persister.DeleteUser(&user)
			if err != nil {
				globals.AppLogger.Error("could not delete user", "error", err)
				return
			}
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update channel, user or role",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Set: " + strings.Join(args, " "))
		},
	}
	var cmdSetChannel = &cobra.Command{
		Use:   "channel [channel definition]",
		Short: "Set channel",
		Long:  `set channel creates or updates a channel. If the channel definition is "-", the definition is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			dec := json.NewDecoder(r)
			// the wire type hides admin_password from JSON, accept it here
			// so the secret can be provisioned offline
			payload := struct {
				types.Channel
				AdminPassword string `json:"admin_password"`
			}{}
			err := dec.Decode(&payload)
			if err != nil {
				globals.AppLogger.Error("could not decode channel", "error", err)
				return
			}
			channel := payload.Channel
			channel.AdminPassword = payload.AdminPassword
			if channel.Id == "" {
				globals.AppLogger.Error("no channel id")
				return
			}
			if channel.OwnerId == "" {
				globals.AppLogger.Warn("no owner set")
			}
			err = persister.StoreChannel(channel)
			if err != nil {
				globals.AppLogger.Error("could not store channel", "error", err)
				return
			}
		},
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates a user with the given definition. If the user definition is "-", it is read from STDIN.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var r io.Reader
			if args[0] == "-" {
				r = os.Stdin
			} else {
				r = bytes.NewReader([]byte(args[0]))
			}
			dec := json.NewDecoder(r)
			user := types.User{}
			err := dec.Decode(&user)
			if err != nil {
				globals.AppLogger.Error("could not decode user", "error", err)
				return
			}
			if user.Id == "" {
				globals.AppLogger.Error("no user id")
				return
			}
			err = persister.StoreUser(user)
			if err != nil {
				globals.AppLogger.Error("could not store user", "error", err)
				return
			}
		},
	}
	var cmdSetRole = &cobra.Command{
		Use:   "role [user id] [role]",
		Short: "Set a user's role",
		Long:  `set role assigns one of owner, admin, moderator or user.`,
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			role := types.Role(args[1])
			if !role.Valid() {
				globals.AppLogger.Error("invalid role", "role", args[1])
				return
			}
			if err := persister.SetUserRole(args[0], role); err != nil {
				globals.AppLogger.Error("could not set role", "error", err)
				return
			}
		},
	}
	var cmdKline = &cobra.Command{
		Use:   "kline",
		Short: "manage k-lines",
		Args:  cobra.MinimumNArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Kline: " + strings.Join(args, " "))
		},
	}
	var cmdKlineAdd = &cobra.Command{
		Use:   "add [pattern] [duration] [reason...]",
		Short: "Add a k-line",
		Long:  `add inserts a k-line for the given IP pattern. The duration is one of the Nm/Nh/Nd forms, anything else makes the k-line permanent.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			durationToken := ""
			reason := "No reason given"
			if len(args) > 1 {
				rest := args[1:]
				if moderation.IsDurationToken(rest[0]) {
					durationToken = rest[0]
					rest = rest[1:]
				}
				if len(rest) > 0 {
					reason = strings.Join(rest, " ")
				}
			}
			expiresAt, err := engine.AddKline(cliContext(), args[0], reason, durationToken)
			if err != nil {
				globals.AppLogger.Error("could not add k-line", "error", err)
				return
			}
			if expiresAt != nil {
				fmt.Printf("K-line added for pattern: %s (expires %s)\n", args[0], expiresAt)
			} else {
				fmt.Printf("K-line added for pattern: %s\n", args[0])
			}
		},
	}
	var cmdKlineDel = &cobra.Command{
		Use:   "del [pattern]",
		Short: "Remove a k-line",
		Long:  `del removes every k-line stored for the given IP pattern.`,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := engine.RemoveKline(cliContext(), args[0]); err != nil {
				globals.AppLogger.Error("could not remove k-line", "error", err)
				return
			}
			fmt.Printf("K-line removed for pattern: %s\n", args[0])
		},
	}
	var rootCmd = &cobra.Command{Use: "jachat-admin"}
	rootCmd.AddCommand(cmdShow)
	rootCmd.AddCommand(cmdDelete)
	rootCmd.AddCommand(cmdSet)
	rootCmd.AddCommand(cmdKline)
	cmdShow.AddCommand(cmdShowUsers, cmdShowUser, cmdShowChannels, cmdShowKlines, cmdShowAudit)
	cmdDelete.AddCommand(cmdDeleteChannel, cmdDeleteUser)
	cmdSet.AddCommand(cmdSetChannel, cmdSetUser, cmdSetRole)
	cmdKline.AddCommand(cmdKlineAdd, cmdKlineDel)
	rootCmd.Execute()
}
