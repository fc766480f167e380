package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	mw "github.com/kiranshivaraju/errorwatch/internal/api/middleware"
	"github.com/kiranshivaraju/errorwatch/internal/records"
	"github.com/kiranshivaraju/errorwatch/internal/store"
	"github.com/kiranshivaraju/errorwatch/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefix = "ew_"

var validScopes = []string{mw.ScopeIngest, mw.ScopeRead, mw.ScopeAdmin}

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Issue and list API keys",
	}

	var name string
	var scopes []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range scopes {
				if !slices.Contains(validScopes, s) {
					return fmt.Errorf("unknown scope %q: must be one of %s", s, strings.Join(validScopes, ", "))
				}
			}

			rawKey, err := generateKey()
			if err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("hash key: %w", err)
			}

			return withBackend(cmd.Context(), func(b store.Backend) error {
				key, err := records.NewAPIKeyStore(b, store.Options{}).Create(cmd.Context(), &models.APIKey{
					Name:      name,
					KeyHash:   string(hash),
					KeyPrefix: rawKey[:mw.KeyPrefixLen],
					Scopes:    scopes,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "id:     %s\n", key.ID)
				fmt.Fprintf(out, "scopes: %s\n", strings.Join(key.Scopes, ","))
				fmt.Fprintf(out, "key:    %s\n", rawKey)
				fmt.Fprintln(cmd.ErrOrStderr(), "Store this key now; it cannot be shown again.")
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "Human-readable key name")
	create.Flags().StringSliceVar(&scopes, "scopes", []string{mw.ScopeIngest}, "Comma-separated scopes (ingest, read, admin)")
	create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b store.Backend) error {
				keys, err := records.NewAPIKeyStore(b, store.Options{}).List(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tSCOPES\tLAST USED")
				for _, k := range keys {
					lastUsed := "-"
					if k.LastUsedAt != nil {
						lastUsed = k.LastUsedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","), lastUsed)
				}
				return tw.Flush()
			})
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func generateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

func newFeaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Map root features to source repositories",
	}

	var setID, rootFeature, url string
	set := &cobra.Command{
		Use:   "set",
		Short: "Add or replace one root feature in a feature set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b store.Backend) error {
				reg := records.NewFeatureRegistry(b, nil, store.Options{})

				current, err := reg.Get(cmd.Context(), setID)
				if err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}

				features := slices.DeleteFunc(current.Features, func(f models.FeatureInfo) bool {
					return f.RootFeature == rootFeature
				})
				features = append(features, models.FeatureInfo{RootFeature: rootFeature, URL: url})

				saved, err := reg.Put(cmd.Context(), models.FeatureInfoSet{ID: setID, Features: features})
				if err != nil {
					return err
				}
				return writeJSON(cmd, saved)
			})
		},
	}
	set.Flags().StringVar(&setID, "set", "default", "Feature set id")
	set.Flags().StringVar(&rootFeature, "root-feature", "", "Root feature name as reported in error payloads")
	set.Flags().StringVar(&url, "url", "", "Source location (git URL, archive or go-getter address)")
	set.MarkFlagRequired("root-feature")
	set.MarkFlagRequired("url")

	list := &cobra.Command{
		Use:   "list",
		Short: "List every registered root feature",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b store.Backend) error {
				all, err := records.NewFeatureRegistry(b, nil, store.Options{}).List(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(cmd, all)
			})
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}

func newAdminsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admins",
		Short: "Register administrator terminals",
	}

	var id string
	var terminals []string
	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the terminal list of an administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd.Context(), func(b store.Backend) error {
				saved, err := records.NewAdminRegistry(b, nil, store.Options{}).Put(cmd.Context(),
					models.AdminRegistration{ID: id, TerminalIDs: terminals})
				if err != nil {
					return err
				}
				return writeJSON(cmd, saved)
			})
		},
	}
	set.Flags().StringVar(&id, "id", "", "Administrator id")
	set.Flags().StringArrayVar(&terminals, "terminal", nil, "Terminal id (repeatable)")
	set.MarkFlagRequired("id")

	cmd.AddCommand(set)
	return cmd
}

func newSubscriptionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Store push subscriptions for terminals",
	}

	var terminal, file string
	put := &cobra.Command{
		Use:   "put",
		Short: "Store the browser push subscription JSON for a terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in []string
			if file != "" {
				in = []string{file}
			}
			raw, err := readInput(cmd, in)
			if err != nil {
				return err
			}
			var sub models.PushSubscription
			if err := json.Unmarshal(raw, &sub); err != nil {
				return fmt.Errorf("parse subscription: %w", err)
			}
			if sub.Endpoint == "" {
				return fmt.Errorf("subscription has no endpoint")
			}

			return withBackend(cmd.Context(), func(b store.Backend) error {
				saved, err := records.NewSubscriptionStore(b, nil, store.Options{}).Put(cmd.Context(),
					models.Subscription{TerminalID: terminal, Subscription: sub})
				if err != nil {
					return err
				}
				return writeJSON(cmd, saved)
			})
		},
	}
	put.Flags().StringVar(&terminal, "terminal", "", "Terminal id")
	put.Flags().StringVar(&file, "file", "", "Subscription JSON file (default stdin)")
	put.MarkFlagRequired("terminal")

	cmd.AddCommand(put)
	return cmd
}
