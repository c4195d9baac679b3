// Command client submits a single fingerprint query.
//
// The client enrolls with the dealer, fetches masking material for the
// current epoch, sends the masked query to a verifier, and prints the
// signed verdict. Neither the dealer nor the verifier learns the query.
//
// # Usage
//
//	go run ./cmd/client --ttp=http://localhost:8081 --ttp-pubkey=<hex> \
//	    --verifier=http://localhost:8082 --query=<64 hex chars>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/lingering/threshnet/client"
	"github.com/lingering/threshnet/cmd/common"
	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/fingerprint"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/services"
)

func main() {
	var (
		logJSON      = flag.Bool("log-json", false, "log in JSON format")
		debug        = flag.Bool("debug", false, "enable debug logging")
		registryURL  = flag.String("registry", "", "registry URL to fetch the protocol config from")
		configPath   = flag.String("config", "", "protocol config YAML (defaults if empty)")
		ttpURL       = flag.String("ttp", "http://localhost:8081", "dealer URL")
		ttpPubKeyHex = flag.String("ttp-pubkey", "", "dealer Ed25519 public key in hex (required)")
		verifierURL  = flag.String("verifier", "http://localhost:8082", "verifier URL")
		queryHex     = flag.String("query", "", "query fingerprint, 64 hex characters (required)")
	)
	flag.Parse()

	log := common.NewLogger(*logJSON, *debug)

	if err := run(*registryURL, *configPath, *ttpURL, *ttpPubKeyHex, *verifierURL, *queryHex); err != nil {
		log.Error("Query failed", "err", err)
		os.Exit(1)
	}
}

func run(registryURL, configPath, ttpURL, ttpPubKeyHex, verifierURL, queryHex string) error {
	if ttpPubKeyHex == "" {
		return fmt.Errorf("flag --ttp-pubkey is required")
	}
	if queryHex == "" {
		return fmt.Errorf("flag --query is required")
	}

	ttpPubKey, err := crypto.NewPublicKeyFromString(ttpPubKeyHex)
	if err != nil {
		return fmt.Errorf("invalid dealer public key: %w", err)
	}
	query, err := fingerprint.ParseHex(queryHex)
	if err != nil {
		return fmt.Errorf("invalid query fingerprint: %w", err)
	}

	protoConfig, err := loadConfig(registryURL, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	_, signingKey, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	_, kemKey, err := crypto.GenerateKemKeyPair()
	if err != nil {
		return err
	}

	querier, err := client.New(&client.Config{
		ProtocolConfig: protoConfig,
		TTPPublicKey:   ttpPubKey,
	}, signingKey, kemKey)
	if err != nil {
		return err
	}

	// Enroll and fetch material for the current epoch.
	ttpClient := services.NewTTPClient(ttpURL)
	enrollReq, err := querier.EnrollmentRequest("")
	if err != nil {
		return err
	}
	enrollResp, err := ttpClient.Enroll(signingKey, enrollReq.Object)
	if err != nil {
		return fmt.Errorf("enroll: %w", err)
	}
	if err := querier.HandleEnrollmentResponse(enrollResp); err != nil {
		return err
	}

	epoch, err := ttpClient.CurrentEpoch()
	if err != nil {
		return err
	}
	authTag, err := querier.EpochAuthTag(epoch)
	if err != nil {
		return err
	}
	material, err := ttpClient.EpochMaterial(querier.PublicKey(), epoch, authTag)
	if err != nil {
		return fmt.Errorf("fetch epoch material: %w", err)
	}
	if err := querier.SetEpochMaterial(material); err != nil {
		return err
	}

	// Submit the masked query.
	verifierClient := services.NewVerifierClient(verifierURL)
	if _, err := verifierClient.RegisterClient(signingKey); err != nil {
		return fmt.Errorf("register with verifier: %w", err)
	}

	submission, err := querier.PrepareSubmission(query, epoch)
	if err != nil {
		return err
	}
	verdictResp, err := verifierClient.Submit(submission)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if verdictResp.Verdict == nil {
		return fmt.Errorf("verifier returned no verdict")
	}

	verdict, signer, err := verdictResp.Verdict.Recover()
	if err != nil {
		return fmt.Errorf("invalid verdict signature: %w", err)
	}

	match := "no"
	if verdict.Decision == protocol.DecisionYes {
		match = "yes"
	}
	fmt.Printf("epoch:    %d\n", verdict.Epoch)
	fmt.Printf("msg id:   %d\n", verdict.MsgID)
	fmt.Printf("match:    %s\n", match)
	fmt.Printf("verifier: %s\n", signer.String())
	return nil
}

func loadConfig(registryURL, configPath string) (*protocol.Config, error) {
	if registryURL != "" {
		return common.FetchConfig(registryURL)
	}
	if configPath != "" {
		return protocol.LoadConfig(configPath)
	}
	return protocol.DefaultConfig(), nil
}
