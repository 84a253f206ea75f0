// Command demo runs a small circulation walkthrough: it registers a book and
// two members, borrows and returns copies, and prints the resulting views.
//
// The backing store engine is selected with CIRCULATION_DB_ADAPTER:
// "memory" (default, no database needed), "pgx", "sql", or "sqlx".
// Postgres adapters read the DSN from CIRCULATION_POSTGRES_DSN.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openshelf/circulation-ledger-go/circulation"
	"github.com/openshelf/circulation-ledger-go/example/config"
	"github.com/openshelf/circulation-ledger-go/ledgerstore"
	"github.com/openshelf/circulation-ledger-go/ledgerstore/memoryengine"
	"github.com/openshelf/circulation-ledger-go/ledgerstore/oteladapters"
	"github.com/openshelf/circulation-ledger-go/ledgerstore/postgresengine"
)

const envDBAdapter = "CIRCULATION_DB_ADAPTER"

func main() {
	ctx := context.Background()
	logger := oteladapters.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	store, err := buildStore(ctx, logger)
	if err != nil {
		log.Fatal("Failed to build store, error: ", err)
	}

	repo, err := circulation.NewRepository(circulation.Config{},
		circulation.WithRepositoryLogger(logger))
	if err != nil {
		log.Fatal("Failed to build repository, error: ", err)
	}

	if attachErr := repo.Attach(ctx, store); attachErr != nil {
		log.Fatal("Failed to attach repository, error: ", attachErr)
	}
	defer repo.Detach()

	engine, err := circulation.NewEngine(store, repo, circulation.Config{},
		circulation.WithLogger(logger))
	if err != nil {
		log.Fatal("Failed to build engine, error: ", err)
	}

	if runErr := run(ctx, engine, repo); runErr != nil {
		log.Fatal("Demo failed, error: ", runErr)
	}
}

func buildStore(ctx context.Context, logger ledgerstore.Logger) (ledgerstore.Store, error) {
	switch adapter := os.Getenv(envDBAdapter); adapter {
	case "pgx":
		pool, err := pgxpool.NewWithConfig(ctx, config.PostgresPGXPoolConfig())
		if err != nil {
			return nil, err
		}

		return postgresengine.NewStoreFromPGXPool(pool, postgresengine.WithLogger(logger))

	case "sql":
		return postgresengine.NewStoreFromSQLDB(config.PostgresSQLDBConfig(), postgresengine.WithLogger(logger))

	case "sqlx":
		return postgresengine.NewStoreFromSQLX(config.PostgresSQLXConfig(), postgresengine.WithLogger(logger))

	default:
		return memoryengine.NewStore(memoryengine.WithLogger(logger))
	}
}

func run(ctx context.Context, engine *circulation.Engine, repo *circulation.Repository) error {
	book, err := engine.AddBook(ctx, circulation.BookDraft{
		Title:    "The Left Hand of Darkness",
		Author:   "Ursula K. Le Guin",
		ISBN:     "978-0441478125",
		Genre:    "Science Fiction",
		Quantity: 2,
	})
	if err != nil {
		return err
	}

	alice, err := engine.AddMember(ctx, circulation.MemberDraft{
		Name: "Alice Liddell", Email: "alice@example.com",
	})
	if err != nil {
		return err
	}

	bob, err := engine.AddMember(ctx, circulation.MemberDraft{
		Name: "Bob Harris", Email: "bob@example.com", MemberID: "MEM-2001",
	})
	if err != nil {
		return err
	}

	session, err := circulation.Login(
		circulation.IdentityConfig{AdminPassword: "admin123"}, repo, alice.MemberID, "")
	if err != nil {
		return err
	}
	fmt.Printf("logged in: role=%s member=%s\n", session.Role, session.Member.Name)

	loan, err := engine.Borrow(ctx, alice.MemberID, book.ISBN)
	if err != nil {
		return err
	}
	fmt.Printf("borrowed: %q by %s, due %s\n", loan.BookTitle, loan.MemberName, loan.DueDate.Format("2006-01-02"))

	if _, err = engine.Borrow(ctx, bob.MemberID, book.Title); err != nil {
		return err
	}

	// A second borrow of the same book by the same member must fail.
	if _, err = engine.Borrow(ctx, alice.MemberID, book.ISBN); err != nil {
		fmt.Println("duplicate borrow rejected:", err)
	}

	if _, err = engine.Return(ctx, alice.MemberID, book.ISBN); err != nil {
		return err
	}

	snapshot := repo.Snapshot()
	fmt.Printf("\ncatalogue: %d books, %d members, %d transactions\n",
		len(snapshot.Books), len(snapshot.Members), len(snapshot.Transactions))

	for _, transaction := range circulation.History(snapshot.Transactions) {
		fmt.Printf("  %-30q %-15s %s\n",
			transaction.BookTitle, transaction.MemberID, circulation.StatusOf(transaction, loan.BorrowDate))
	}

	for memberID, count := range circulation.OpenCountByMember(snapshot.Transactions) {
		fmt.Printf("open loans for %s: %d\n", memberID, count)
	}

	return nil
}
