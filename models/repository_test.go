package models

import (
	"context"
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"client-directory/config"
)

// newTestRepository opens a fresh in-memory SQLite directory.
func newTestRepository(t *testing.T) (*GormRepository, context.Context) {
	t.Helper()

	db, err := Open(&config.Config{DBDriver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)

	repo := NewRepository(db)
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	require.NoError(t, repo.InitializeSchema(ctx))
	return repo, ctx
}

func countRows(t *testing.T, repo *GormRepository, model interface{}, clientID uint) int64 {
	t.Helper()
	var n int64
	require.NoError(t, repo.db.Model(model).Where("client_id = ?", clientID).Count(&n).Error)
	return n
}

func phoneNumbers(t *testing.T, repo *GormRepository, clientID uint) []string {
	t.Helper()
	phones, err := repo.ListPhones(context.Background(), clientID)
	require.NoError(t, err)
	numbers := make([]string, 0, len(phones))
	for _, p := range phones {
		require.NotNil(t, p.Phone)
		numbers = append(numbers, *p.Phone)
	}
	return numbers
}

func TestAddClientRoundTrip(t *testing.T) {
	repo, ctx := newTestRepository(t)

	added, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)
	assert.NotZero(t, added.ID)
	assert.Equal(t, "John", added.FirstName)
	assert.Equal(t, "Doe", added.LastName)
	assert.Equal(t, "1@example.com", added.Email)

	got, err := repo.GetClient(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, got)
}

func TestAddClientGeneratesSequentialIDs(t *testing.T) {
	repo, ctx := newTestRepository(t)

	first, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)
	second, err := repo.AddClient(ctx, "Ann", "Doe", "2@example.com")
	require.NoError(t, err)

	assert.Equal(t, uint(1), first.ID)
	assert.Equal(t, uint(2), second.ID)
}

func TestAddClientDuplicateEmail(t *testing.T) {
	repo, ctx := newTestRepository(t)

	_, err := repo.AddClient(ctx, "John", "Doe", "a@example.com")
	require.NoError(t, err)

	_, err = repo.AddClient(ctx, "Jane", "Roe", "a@example.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUniqueViolation)

	var liteErr sqlite3.Error
	assert.True(t, errors.As(err, &liteErr), "driver error should stay in the chain")

	var n int64
	require.NoError(t, repo.db.Model(&Client{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestAddPhoneUnknownClient(t *testing.T) {
	repo, ctx := newTestRepository(t)

	_, err := repo.AddPhone(ctx, 42, "8-800-555-35-35")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignKeyViolation)
	assert.Equal(t, int64(0), countRows(t, repo, &Phone{}, 42))
}

func TestAddPhone(t *testing.T) {
	repo, ctx := newTestRepository(t)

	client, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)

	phone, err := repo.AddPhone(ctx, client.ID, "8-800-555-35-35")
	require.NoError(t, err)
	assert.NotZero(t, phone.ID)
	require.NotNil(t, phone.ClientID)
	assert.Equal(t, client.ID, *phone.ClientID)

	assert.Equal(t, []string{"8-800-555-35-35"}, phoneNumbers(t, repo, client.ID))
}

func TestGetClientNotFound(t *testing.T) {
	repo, ctx := newTestRepository(t)

	_, err := repo.GetClient(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateClientFields(t *testing.T) {
	repo, ctx := newTestRepository(t)

	client, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)

	err = repo.UpdateClient(ctx, client.ID, ClientUpdate{
		FirstName: String("Harry"),
		LastName:  String("Potter"),
		Email:     String(""),
	})
	require.NoError(t, err)

	got, err := repo.GetClient(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Harry", got.FirstName)
	assert.Equal(t, "Potter", got.LastName)
	assert.Equal(t, "1@example.com", got.Email, "empty fields are left untouched")
}

func TestUpdateClientPhoneOverwritesEveryNumber(t *testing.T) {
	repo, ctx := newTestRepository(t)

	client, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)
	other, err := repo.AddClient(ctx, "Ann", "Doe", "2@example.com")
	require.NoError(t, err)

	for _, number := range []string{"8-800-555-35-35", "8-800-555-35-36", "8-800-555-35-19"} {
		_, err := repo.AddPhone(ctx, client.ID, number)
		require.NoError(t, err)
	}
	_, err = repo.AddPhone(ctx, other.ID, "8-800-555-35-12")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateClient(ctx, client.ID, ClientUpdate{Phone: String("X")}))

	assert.Equal(t, []string{"X", "X", "X"}, phoneNumbers(t, repo, client.ID))
	assert.Equal(t, []string{"8-800-555-35-12"}, phoneNumbers(t, repo, other.ID))
}

func TestUpdateClientDuplicateEmail(t *testing.T) {
	repo, ctx := newTestRepository(t)

	_, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)
	ann, err := repo.AddClient(ctx, "Ann", "Doe", "2@example.com")
	require.NoError(t, err)

	err = repo.UpdateClient(ctx, ann.ID, ClientUpdate{Email: String("1@example.com")})
	assert.ErrorIs(t, err, ErrUniqueViolation)
}

func TestUpdateClientUnknownID(t *testing.T) {
	repo, ctx := newTestRepository(t)

	err := repo.UpdateClient(ctx, 7, ClientUpdate{FirstName: String("Ghost"), Phone: String("X")})
	assert.NoError(t, err)
}

func TestDeletePhone(t *testing.T) {
	repo, ctx := newTestRepository(t)

	client, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)
	for _, number := range []string{"8-800-555-35-35", "8-800-555-35-36"} {
		_, err := repo.AddPhone(ctx, client.ID, number)
		require.NoError(t, err)
	}

	require.NoError(t, repo.DeletePhone(ctx, client.ID, "8-800-555-35-35"))
	assert.Equal(t, []string{"8-800-555-35-36"}, phoneNumbers(t, repo, client.ID))

	// No match is not an error.
	require.NoError(t, repo.DeletePhone(ctx, client.ID, "0-000-000-00-00"))
	require.NoError(t, repo.DeletePhone(ctx, 99, "8-800-555-35-36"))
	assert.Equal(t, []string{"8-800-555-35-36"}, phoneNumbers(t, repo, client.ID))
}

func TestDeleteClientRemovesPhonesFirst(t *testing.T) {
	repo, ctx := newTestRepository(t)

	client, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)
	keep, err := repo.AddClient(ctx, "Ann", "Doe", "2@example.com")
	require.NoError(t, err)
	for _, number := range []string{"8-800-555-35-35", "8-800-555-35-36"} {
		_, err := repo.AddPhone(ctx, client.ID, number)
		require.NoError(t, err)
	}
	_, err = repo.AddPhone(ctx, keep.ID, "8-800-555-35-12")
	require.NoError(t, err)

	require.NoError(t, repo.DeleteClient(ctx, client.ID))

	assert.Equal(t, int64(0), countRows(t, repo, &Client{}, client.ID))
	assert.Equal(t, int64(0), countRows(t, repo, &Phone{}, client.ID))
	assert.Equal(t, int64(1), countRows(t, repo, &Client{}, keep.ID))
	assert.Equal(t, int64(1), countRows(t, repo, &Phone{}, keep.ID))
}

func TestDeleteClientUnknownID(t *testing.T) {
	repo, ctx := newTestRepository(t)
	assert.NoError(t, repo.DeleteClient(ctx, 404))
}

func TestForeignKeyBlocksDirectClientDelete(t *testing.T) {
	repo, ctx := newTestRepository(t)

	client, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)
	_, err = repo.AddPhone(ctx, client.ID, "8-800-555-35-35")
	require.NoError(t, err)

	err = repo.db.Where("client_id = ?", client.ID).Delete(&Client{}).Error
	assert.ErrorIs(t, classify(err), ErrForeignKeyViolation)
}

func TestInitializeSchemaDropsExistingRows(t *testing.T) {
	repo, ctx := newTestRepository(t)

	client, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)
	_, err = repo.AddPhone(ctx, client.ID, "8-800-555-35-35")
	require.NoError(t, err)

	require.NoError(t, repo.InitializeSchema(ctx))

	_, err = repo.GetClient(ctx, client.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, phoneNumbers(t, repo, client.ID))
}

func TestEnsureSchemaKeepsRows(t *testing.T) {
	repo, ctx := newTestRepository(t)

	client, err := repo.AddClient(ctx, "John", "Doe", "1@example.com")
	require.NoError(t, err)

	require.NoError(t, repo.EnsureSchema(ctx))

	_, err = repo.GetClient(ctx, client.ID)
	assert.NoError(t, err)
}

func seedDirectory(t *testing.T, repo *GormRepository, ctx context.Context) {
	t.Helper()

	clients := []struct{ first, last, email string }{
		{"John", "Doe", "1@example.com"},
		{"Ann", "Doe", "2@example.com"},
		{"Vlad", "Ivanov", "5@example.com"},
		{"Lionel", "Messi", "8@example.com"},
	}
	for _, c := range clients {
		_, err := repo.AddClient(ctx, c.first, c.last, c.email)
		require.NoError(t, err)
	}

	phones := []struct {
		clientID uint
		number   string
	}{
		{1, "8-800-555-35-35"},
		{1, "8-800-555-35-36"},
		{2, "8-800-555-35-12"},
		{3, "8-800-555-35-15"},
	}
	for _, p := range phones {
		_, err := repo.AddPhone(ctx, p.clientID, p.number)
		require.NoError(t, err)
	}
}

func contactEmails(contacts []Contact) []string {
	emails := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if c.Email == nil {
			emails = append(emails, "")
			continue
		}
		emails = append(emails, *c.Email)
	}
	return emails
}

func TestFindClients(t *testing.T) {
	repo, ctx := newTestRepository(t)
	seedDirectory(t, repo, ctx)

	tests := []struct {
		name   string
		filter ClientFilter
		want   []string
	}{
		{
			name:   "by first name",
			filter: ClientFilter{FirstName: String("Vlad")},
			want:   []string{"5@example.com"},
		},
		{
			name:   "by last name returns one row per phone",
			filter: ClientFilter{LastName: String("Doe")},
			want:   []string{"1@example.com", "1@example.com", "2@example.com"},
		},
		{
			name:   "by phone",
			filter: ClientFilter{Phone: String("8-800-555-35-12")},
			want:   []string{"2@example.com"},
		},
		{
			name:   "client without phones",
			filter: ClientFilter{Email: String("8@example.com")},
			want:   []string{"8@example.com"},
		},
		{
			name:   "any of several filters",
			filter: ClientFilter{FirstName: String("Vlad"), Email: String("2@example.com")},
			want:   []string{"2@example.com", "5@example.com"},
		},
		{
			name: "all of several filters",
			filter: ClientFilter{
				LastName: String("Doe"),
				Phone:    String("8-800-555-35-36"),
				Mode:     MatchAll,
			},
			want: []string{"1@example.com"},
		},
		{
			name:   "no match",
			filter: ClientFilter{FirstName: String("Nobody")},
			want:   []string{},
		},
		{
			name:   "no filters returns every row",
			filter: ClientFilter{},
			want: []string{
				"1@example.com", "1@example.com", "2@example.com", "5@example.com", "8@example.com",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindClients(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, contactEmails(got))
		})
	}
}

func TestFindClientsIncludesPhonesWithoutOwner(t *testing.T) {
	repo, ctx := newTestRepository(t)
	seedDirectory(t, repo, ctx)

	require.NoError(t, repo.db.Exec("INSERT INTO phones (phone, client_id) VALUES (?, NULL)", "x").Error)

	got, err := repo.FindClients(ctx, ClientFilter{Phone: String("x")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].FirstName)
	assert.Nil(t, got[0].LastName)
	assert.Nil(t, got[0].Email)
	require.NotNil(t, got[0].Phone)
	assert.Equal(t, "x", *got[0].Phone)

	// NULLs sort differently across stores, so only membership is checked.
	all, err := repo.FindClients(ctx, ClientFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assert.Contains(t, all, Contact{Phone: String("x")})
}

func TestFindClientsByEmailReturnsInsertedValues(t *testing.T) {
	repo, ctx := newTestRepository(t)

	_, err := repo.AddClient(ctx, "John", "Doe", "a@example.com")
	require.NoError(t, err)

	got, err := repo.FindClients(ctx, ClientFilter{Email: String("a@example.com")})
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "John", *got[0].FirstName)
	assert.Equal(t, "Doe", *got[0].LastName)
	assert.Equal(t, "a@example.com", *got[0].Email)
	assert.Nil(t, got[0].Phone)
}

func TestNewClientDocument(t *testing.T) {
	client := &Client{ID: 3, FirstName: "Mike", LastName: "Zhukov", Email: "3@example.com"}
	phones := []Phone{{Phone: String("8-800-555-35-13")}, {Phone: nil}, {Phone: String("8-800-555-35-21")}}

	doc := NewClientDocument(client, phones)

	assert.Equal(t, uint(3), doc.ID)
	assert.Equal(t, "Mike", doc.FirstName)
	assert.Equal(t, []string{"8-800-555-35-13", "8-800-555-35-21"}, doc.Phones)
}
