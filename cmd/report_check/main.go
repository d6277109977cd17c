// Package main provides an offline check of a persisted proof-of-reserve report.
// It recomputes the content digest and optionally re-reads the verified
// contracts from chain.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/reserve-snapshot/internal/adapter"
	"github.com/reserve-snapshot/internal/models"
	"github.com/reserve-snapshot/internal/report"
)

func main() {
	fileFlag := flag.String("file", "", "Report file to check")
	dirFlag := flag.String("dir", "", "Reports directory (used with -date)")
	dateFlag := flag.String("date", "", "Report date YYYY-MM-DD, or 'latest' (used with -dir)")
	onchainFlag := flag.Bool("onchain", false, "Re-check contract code and platform balances on chain")
	walletFlag := flag.String("wallet", "", "Platform wallet for balance re-checks (defaults to PLATFORM_WALLET_ADDRESS)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: Could not load .env file: %v\n", err)
	}

	snapshot, source, err := loadReport(*fileFlag, *dirFlag, *dateFlag)
	if err != nil {
		fmt.Printf("Error loading report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Report:   %s\n", source)
	fmt.Printf("Date:     %s\n", snapshot.ReportMetadata.ReportDate)
	fmt.Printf("ID:       %s\n", snapshot.ReportMetadata.ReportID)
	fmt.Printf("Ratio:    %s (%s)\n", snapshot.ReserveSummary.ReserveRatio.StringFixed(4), snapshot.ReserveSummary.ReserveAdequacy)

	valid, computed, err := report.VerifyDigest(snapshot)
	if err != nil {
		fmt.Printf("Error computing digest: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Recorded: %s\n", snapshot.AuditInformation.ContentDigest)
	fmt.Printf("Computed: %s\n", computed)
	if !valid {
		fmt.Println("❌ Digest mismatch: report content has changed since generation")
		os.Exit(1)
	}
	fmt.Println("✅ Digest matches")

	if !*onchainFlag {
		return
	}

	wallet := *walletFlag
	if wallet == "" {
		wallet = os.Getenv("PLATFORM_WALLET_ADDRESS")
	}
	mismatches, err := recheckOnChain(snapshot, os.Getenv("ETHEREUM_RPC_URL"), wallet)
	if err != nil {
		fmt.Printf("Error re-checking on chain: %v\n", err)
		os.Exit(1)
	}
	if mismatches > 0 {
		fmt.Printf("❌ %d on-chain mismatches\n", mismatches)
		os.Exit(1)
	}
	fmt.Println("✅ On-chain state matches report")
}

func loadReport(file, dir, date string) (*models.PoRSnapshot, string, error) {
	fs := afero.NewOsFs()

	if file != "" {
		data, err := afero.ReadFile(fs, file)
		if err != nil {
			return nil, "", err
		}
		snapshot, err := report.Decode(data)
		return snapshot, file, err
	}

	if dir == "" || date == "" {
		return nil, "", fmt.Errorf("either -file or both -dir and -date are required")
	}

	store := report.NewStore(fs, dir)
	if date == "latest" {
		info, err := store.Latest()
		if err != nil {
			return nil, "", err
		}
		date = info.ReportDate
	}
	snapshot, err := store.Read(date)
	return snapshot, dir + "/" + report.FileName(date), err
}

// recheckOnChain returns the number of assets whose current chain state
// disagrees with the report
func recheckOnChain(snapshot *models.PoRSnapshot, rpcURL, wallet string) (int, error) {
	if rpcURL == "" {
		rpcURL = "http://localhost:8545"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, err := adapter.DialEthereum(ctx, rpcURL)
	if err != nil {
		return 0, fmt.Errorf("failed to dial %s: %w", adapter.RedactURL(rpcURL), err)
	}
	defer client.Close()

	reader, err := adapter.NewTokenReader(client)
	if err != nil {
		return 0, err
	}

	var holder *common.Address
	if wallet != "" {
		if !common.IsHexAddress(wallet) {
			return 0, fmt.Errorf("wallet %q is not a hex address", wallet)
		}
		addr := common.HexToAddress(wallet)
		holder = &addr
	}

	fmt.Printf("\n%-10s %-42s %-10s %-10s\n", "SYMBOL", "CONTRACT", "REPORTED", "CURRENT")

	mismatches := 0
	for _, asset := range snapshot.DetailedAssets {
		if asset.TokenContract == "" || !common.IsHexAddress(asset.TokenContract) {
			continue
		}
		contract := common.HexToAddress(asset.TokenContract)

		exists, err := reader.HasCode(ctx, contract)
		if err != nil {
			fmt.Printf("%-10s %-42s %-10t %-10s\n", asset.Symbol, contract.Hex(), asset.ContractExists, "error")
			mismatches++
			continue
		}

		status := ""
		if exists != asset.ContractExists {
			status = " ⚠️"
			mismatches++
		}
		fmt.Printf("%-10s %-42s %-10t %-10t%s\n", asset.Symbol, contract.Hex(), asset.ContractExists, exists, status)

		if holder == nil || asset.PlatformBalance == nil || !exists {
			continue
		}
		balance, err := reader.BalanceOf(ctx, contract, *holder)
		if err != nil {
			fmt.Printf("  balance: error: %v\n", err)
			continue
		}
		if balance.String() != asset.PlatformBalance.String() {
			fmt.Printf("  balance: reported %s, current %s\n", asset.PlatformBalance.String(), balance.String())
		}
	}

	return mismatches, nil
}
