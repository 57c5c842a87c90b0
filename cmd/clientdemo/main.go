package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"client-directory/config"
	"client-directory/models"
)

var sampleClients = []struct {
	firstName, lastName, email string
}{
	{"John", "Doe", "1@example.com"},
	{"Ann", "Doe", "2@example.com"},
	{"Mike", "Zhukov", "3@example.com"},
	{"Liza", "Romanova", "4@example.com"},
	{"Vlad", "Ivanov", "5@example.com"},
	{"Alex", "Petrov", "6@example.com"},
	{"Gans", "Lupin", "7@example.com"},
	{"Lionel", "Messi", "8@example.com"},
}

var samplePhones = []struct {
	clientID uint
	phone    string
}{
	{1, "8-800-555-35-35"},
	{1, "8-800-555-35-36"},
	{2, "8-800-555-35-12"},
	{3, "8-800-555-35-13"},
	{4, "8-800-555-35-14"},
	{5, "8-800-555-35-15"},
	{6, "8-800-555-35-16"},
	{7, "8-800-555-35-17"},
	{8, "8-800-555-35-18"},
	{1, "8-800-555-35-19"},
	{2, "8-800-555-35-20"},
	{3, "8-800-555-35-21"},
}

func main() {
	if err := demo(); err != nil {
		os.Exit(1)
	}
}

// demo owns the store so its deferred close runs before main exits.
func demo() (err error) {
	logger := log.New(os.Stderr, "CLIENTS: ", log.LstdFlags)
	out := log.New(os.Stdout, "", 0)
	defer func() {
		if err != nil {
			logger.Printf("Demo failed: %v", err)
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := models.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	repo := models.NewRepository(db)
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			logger.Printf("Error closing database: %v", cerr)
		}
	}()

	return run(context.Background(), repo, out)
}

func run(ctx context.Context, repo models.Repository, out *log.Logger) error {
	if err := repo.InitializeSchema(ctx); err != nil {
		return err
	}
	out.Println("schema_created")

	for _, c := range sampleClients {
		client, err := repo.AddClient(ctx, c.firstName, c.lastName, c.email)
		if err != nil {
			return err
		}
		out.Printf("client_added: (%d, %q, %q, %q)", client.ID, client.FirstName, client.LastName, client.Email)
	}

	for _, p := range samplePhones {
		if _, err := repo.AddPhone(ctx, p.clientID, p.phone); err != nil {
			return err
		}
		out.Println("phone_added")
	}

	err := repo.UpdateClient(ctx, 1, models.ClientUpdate{
		FirstName: models.String("Harry"),
		LastName:  models.String("Potter"),
	})
	if err != nil {
		return err
	}
	out.Println("client_changed")

	if err := repo.DeletePhone(ctx, 1, "8-800-555-35-35"); err != nil {
		return err
	}
	out.Println("phone_deleted")

	if err := repo.DeleteClient(ctx, 1); err != nil {
		return err
	}
	out.Println("client_deleted")

	if _, err := repo.AddPhone(ctx, 5, "8-800-555-35-77"); err != nil {
		return err
	}
	out.Println("phone_added")

	contacts, err := repo.FindClients(ctx, models.ClientFilter{FirstName: models.String("Vlad")})
	if err != nil {
		return err
	}
	out.Printf("find_client %s", formatContacts(contacts))
	return nil
}

func formatContacts(contacts []models.Contact) string {
	s := "["
	for i, c := range contacts {
		if i > 0 {
			s += ", "
		}
		s += "(" + quoteOrNull(c.FirstName) + ", " + quoteOrNull(c.LastName) + ", " +
			quoteOrNull(c.Email) + ", " + quoteOrNull(c.Phone) + ")"
	}
	return s + "]"
}

func quoteOrNull(s *string) string {
	if s == nil {
		return "NULL"
	}
	return "'" + *s + "'"
}
