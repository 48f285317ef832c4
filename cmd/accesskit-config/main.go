package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/accesskit"
	"github.com/oarkflow/accesskit/logger"
	"github.com/oarkflow/accesskit/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "check":
		handleCheck()
	case "serve":
		handleServe()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("accesskit-config - Configuration tool for accesskit")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  accesskit-config validate <file>                            - Validate configuration")
	fmt.Println("  accesskit-config convert <input> <output>                   - Convert between formats")
	fmt.Println("  accesskit-config stats <file>                               - Show configuration statistics")
	fmt.Println("  accesskit-config check <file> <principal> <type> <id>       - Resolve tab access for a principal")
	fmt.Println("  accesskit-config serve <file> <addr>                        - Serve the access API")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func loadConfig(path string) (*accesskit.Config, error) {
	return accesskit.NewConfigLoader().LoadFile(path)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: accesskit-config validate <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Configuration is valid")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: accesskit-config convert <input> <output>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	var data []byte
	switch strings.ToLower(filepath.Ext(os.Args[3])) {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		fmt.Printf("Unsupported output format: %s\n", os.Args[3])
		os.Exit(1)
	}
	if err != nil {
		fmt.Printf("Error encoding config: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(os.Args[3], data, 0o644); err != nil {
		fmt.Printf("Error writing output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", os.Args[3])
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: accesskit-config stats <file>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	tabCount := 0
	for _, tabs := range cfg.Tabs {
		tabCount += len(tabs)
	}
	fmt.Printf("Permissions:  %d\n", len(cfg.Permissions))
	fmt.Printf("Roles:        %d\n", len(cfg.Roles))
	fmt.Printf("Memberships:  %d\n", len(cfg.Memberships))
	fmt.Printf("Components:   %d\n", len(cfg.Components))
	fmt.Printf("Policies:     %d\n", len(cfg.Policies))
	fmt.Printf("Entity types: %d (%d tabs)\n", len(cfg.Tabs), tabCount)
}

// handleCheck wires the config into in-memory stores and prints the tab
// access batch a principal would get for one entity instance.
func handleCheck() {
	if len(os.Args) < 6 {
		fmt.Println("Usage: accesskit-config check <file> <principal> <entity-type> <entity-id>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	principalID, entityType, entityID := os.Args[3], os.Args[4], os.Args[5]

	ctx := context.Background()
	catalog := accesskit.NewCatalog()
	policies := accesskit.NewPolicyRegistry()
	tabs := accesskit.NewTabRegistry()
	roles := stores.NewMemoryRoleStore()
	memberships := stores.NewMemoryMembershipStore()
	if err := cfg.Apply(ctx, accesskit.ApplyTarget{
		Catalog:     catalog,
		Policies:    policies,
		Tabs:        tabs,
		Roles:       roles,
		Memberships: memberships,
	}); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	resolver := accesskit.NewAccessResolver(catalog, policies, tabs,
		accesskit.NewStorePermissionSource(roles, memberships),
		accesskit.WithOwnershipResolver(stores.NewMemoryOwnershipStore()),
		accesskit.WithComponents(cfg.Components...),
	)
	results, err := resolver.ResolveBatch(ctx, principalID, entityType, entityID)
	if err != nil {
		fmt.Printf("Resolution failed: %v\n", err)
		os.Exit(1)
	}
	for _, res := range results {
		if res.Granted {
			fmt.Printf("  %-20s granted  %s\n", res.TabID, res.Href)
			continue
		}
		fmt.Printf("  %-20s denied   (%s)\n", res.TabID, res.Reason)
	}
}

// handleServe wires the config into in-memory stores and serves the access
// API with the resolution cache in front of the resolver.
func handleServe() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: accesskit-config serve <file> <addr>")
		os.Exit(1)
	}
	cfg, err := loadConfig(os.Args[2])
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	addr := os.Args[3]

	ctx := context.Background()
	catalog := accesskit.NewCatalog()
	policies := accesskit.NewPolicyRegistry()
	tabs := accesskit.NewTabRegistry()
	roles := stores.NewMemoryRoleStore()
	memberships := stores.NewMemoryMembershipStore()
	if err := cfg.Apply(ctx, accesskit.ApplyTarget{
		Catalog:     catalog,
		Policies:    policies,
		Tabs:        tabs,
		Roles:       roles,
		Memberships: memberships,
	}); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewPhusluLogger()
	resolver := accesskit.NewAccessResolver(catalog, policies, tabs,
		accesskit.NewStorePermissionSource(roles, memberships),
		accesskit.WithOwnershipResolver(stores.NewMemoryOwnershipStore()),
		accesskit.WithComponents(cfg.Components...),
		accesskit.WithResolverLogger(log),
	)
	cacheOpts := append(cfg.CacheOptions(), accesskit.WithCacheLogger(log))
	cache, err := accesskit.NewResolutionCache(resolver, cacheOpts...)
	if err != nil {
		fmt.Printf("Error configuring cache: %v\n", err)
		os.Exit(1)
	}
	srv := accesskit.NewServer(resolver, cache,
		accesskit.WithAdminStores(roles, memberships),
		accesskit.WithServerLogger(log),
	)
	log.Info("serving access API", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		fmt.Printf("Server error: %v\n", err)
		os.Exit(1)
	}
}
