package main

import (
	"flag"
	"fmt"
	"log"

	"fishcam/internal/config"
	"fishcam/internal/services/identity"
)

func main() {
	cfg := config.Load()
	deviceID := flag.String("device", "", "Device id (defaults to DEVICE_ID or the machine id)")
	verify := flag.String("verify", "", "Bearer token to verify instead of issuing one")
	flag.Parse()

	signer, err := identity.NewSigner(cfg.SigningKey)
	if err != nil {
		log.Fatalf("JWT_SIGNING_KEY: %v", err)
	}

	if *verify != "" {
		token, err := identity.ParseBearer(*verify)
		if err != nil {
			// Dopuszczamy też sam JWT bez prefiksu
			token = *verify
		}
		id, err := signer.Verify(token)
		if err != nil {
			log.Fatalf("Token rejected: %v", err)
		}
		fmt.Printf("✅ Valid token for device %s\n", id)
		return
	}

	if *deviceID == "" {
		*deviceID, err = identity.PlatformFromConfig(cfg).PlatformID()
		if err != nil {
			log.Fatalf("No device id: %v", err)
		}
	}

	token, err := signer.Sign(*deviceID)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(identity.BearerToken(token))
}
