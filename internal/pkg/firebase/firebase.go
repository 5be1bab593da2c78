// Package firebase owns the process-wide Firestore client.
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/firestore"
	firebaseadmin "firebase.google.com/go/v4"
	"github.com/gofiber/fiber/v2/log"
	"google.golang.org/api/option"

	"github.com/tradorr/tradorr-api/internal/pkg/env"
)

// Credentials are the service account fields supplied through the environment.
type Credentials struct {
	ProjectID   string
	ClientEmail string
	PrivateKey  string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		ProjectID:   strings.TrimSpace(env.GetEnv("FIREBASE_PROJECT_ID", "")),
		ClientEmail: strings.TrimSpace(env.GetEnv("FIREBASE_CLIENT_EMAIL", "")),
		PrivateKey:  env.GetEnv("FIREBASE_PRIVATE_KEY", ""),
	}
}

// ServiceAccountJSON renders the credentials as a service account key file.
// Keys stored in env files carry literal \n sequences that must become newlines.
func (c Credentials) ServiceAccountJSON() ([]byte, error) {
	if c.ProjectID == "" || c.ClientEmail == "" || c.PrivateKey == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID, FIREBASE_CLIENT_EMAIL and FIREBASE_PRIVATE_KEY are required")
	}
	return json.Marshal(map[string]string{
		"type":         "service_account",
		"project_id":   c.ProjectID,
		"client_email": c.ClientEmail,
		"private_key":  strings.ReplaceAll(c.PrivateKey, `\n`, "\n"),
		"token_uri":    "https://oauth2.googleapis.com/token",
	})
}

var (
	client  *firestore.Client
	initErr error
	once    sync.Once
)

// Firestore returns the shared client, creating it on first use.
func Firestore(ctx context.Context) (*firestore.Client, error) {
	once.Do(func() {
		client, initErr = newFirestore(ctx, CredentialsFromEnv())
		if initErr != nil {
			log.Errorf("[Firebase] initialization failed: %v", initErr)
			return
		}
		log.Info("[Firebase] Firestore client initialized")
	})
	return client, initErr
}

func newFirestore(ctx context.Context, creds Credentials) (*firestore.Client, error) {
	key, err := creds.ServiceAccountJSON()
	if err != nil {
		return nil, err
	}
	app, err := firebaseadmin.NewApp(ctx, &firebaseadmin.Config{ProjectID: creds.ProjectID}, option.WithCredentialsJSON(key))
	if err != nil {
		return nil, fmt.Errorf("create firebase app: %w", err)
	}
	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return fs, nil
}

// Close releases the shared client if it was created.
func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}
