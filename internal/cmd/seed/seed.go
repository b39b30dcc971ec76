// Package seed loads a small demo community into the social store.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/google/uuid"
	socialcmd "github.com/louisbranch/townsquare/internal/cmd/social"
	"github.com/louisbranch/townsquare/internal/platform/authn"
	entrypoint "github.com/louisbranch/townsquare/internal/platform/cmd"
	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
	server "github.com/louisbranch/townsquare/internal/services/social/app"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
	"github.com/louisbranch/townsquare/internal/services/social/posts"
	"github.com/louisbranch/townsquare/internal/services/social/storage"
	"github.com/louisbranch/townsquare/internal/services/social/users"
)

// identityNamespace keeps demo identities stable across runs.
var identityNamespace = uuid.MustParse("6f1c8a52-4b7e-4c55-9a0e-2d8f3b1e7c90")

type demoUser struct {
	Username    string
	DisplayName string
	Bio         string
	Verified    bool
	Posts       []string
}

var demoUsers = []demoUser{
	{Username: "alice", DisplayName: "Alice Liddell", Bio: "Curiouser and curiouser.", Verified: true, Posts: []string{
		"Fell down a rabbit hole today.",
		"Tea party at six, everyone is invited.",
	}},
	{Username: "bob", DisplayName: "Bob Builder", Bio: "Can we fix it?", Posts: []string{
		"New fence is up.",
	}},
	{Username: "carol", DisplayName: "Carol Danvers", Posts: []string{
		"Higher, further, faster.",
		"Back from orbit.",
	}},
	{Username: "dave", DisplayName: "Dave Bowman", Bio: "Open the pod bay doors."},
	{Username: "erin", DisplayName: "Erin Hunter", Posts: []string{
		"Finished chapter twelve.",
	}},
}

// demoFollows lists follower -> followee pairs by username.
var demoFollows = [][2]string{
	{"alice", "bob"},
	{"bob", "carol"},
	{"carol", "alice"},
	{"dave", "alice"},
	{"dave", "bob"},
	{"erin", "carol"},
}

// demoLikes lists liker -> author pairs; the liker likes every post of the author.
var demoLikes = [][2]string{
	{"bob", "alice"},
	{"carol", "alice"},
	{"alice", "carol"},
	{"dave", "erin"},
}

// Config holds seed command configuration.
type Config struct {
	Storage socialcmd.StorageSettings
	Tokens  socialcmd.TokenSettings
	List    bool
}

// Summary counts what a run created. Records that already existed are not counted.
type Summary struct {
	Users   int
	Posts   int
	Follows int
	Likes   int
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Storage.RegisterFlags(fs)
	cfg.Tokens.RegisterFlags(fs)
	fs.BoolVar(&cfg.List, "list", false, "list the demo users and exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DemoIdentity returns the stable identity of a demo username.
func DemoIdentity(username string) identity.Identity {
	return identity.Identity(uuid.NewSHA1(identityNamespace, []byte(username)).String())
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if cfg.List {
		for _, user := range demoUsers {
			fmt.Fprintf(out, "%-8s %s\n", user.Username, DemoIdentity(user.Username))
		}
		return nil
	}

	tokenCfg, err := cfg.Tokens.Config()
	if err != nil {
		return err
	}
	tokens, err := authn.New(tokenCfg)
	if err != nil {
		return err
	}
	driver, err := storage.ParseDriver(cfg.Storage.Driver)
	if err != nil {
		return err
	}
	db, err := storage.Open(driver, cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	stores, err := server.OpenStores(ctx, db)
	if err != nil {
		return err
	}
	summary, err := Load(ctx, stores)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "seeded %d users, %d posts, %d follows, %d likes\n",
		summary.Users, summary.Posts, summary.Follows, summary.Likes)
	for _, user := range demoUsers {
		id := DemoIdentity(user.Username)
		token, err := tokens.Issue(id.String())
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", user.Username, err)
		}
		fmt.Fprintf(out, "%-8s %s\n", user.Username, token)
	}
	return nil
}

// Load writes the demo community into stores. Re-running it creates nothing new.
func Load(ctx context.Context, stores server.Stores) (Summary, error) {
	var summary Summary

	for _, user := range demoUsers {
		id := DemoIdentity(user.Username)
		_, err := stores.Users.CreateUser(ctx, id, users.CreateUserInput{
			Username:    user.Username,
			DisplayName: user.DisplayName,
			Bio:         user.Bio,
		})
		switch {
		case err == nil:
			summary.Users++
		case apperrors.HasCode(err, apperrors.CodeAlreadyExists):
		default:
			return summary, fmt.Errorf("create user %s: %w", user.Username, err)
		}
		if user.Verified {
			if _, err := stores.Users.SetVerified(ctx, id, true); err != nil {
				return summary, fmt.Errorf("verify user %s: %w", user.Username, err)
			}
		}

		existing, err := stores.Posts.ListPostsByUser(ctx, id)
		if err != nil {
			return summary, fmt.Errorf("list posts of %s: %w", user.Username, err)
		}
		if len(existing) > 0 {
			continue
		}
		for _, content := range user.Posts {
			if _, err := stores.Posts.CreatePost(ctx, id, posts.CreatePostInput{Content: content}); err != nil {
				return summary, fmt.Errorf("create post for %s: %w", user.Username, err)
			}
			summary.Posts++
		}
	}

	for _, pair := range demoFollows {
		_, err := stores.Graph.Follow(ctx, DemoIdentity(pair[0]), DemoIdentity(pair[1]))
		switch {
		case err == nil:
			summary.Follows++
		case apperrors.HasCode(err, apperrors.CodeAlreadyFollowing):
		default:
			return summary, fmt.Errorf("follow %s -> %s: %w", pair[0], pair[1], err)
		}
	}

	for _, pair := range demoLikes {
		liker := DemoIdentity(pair[0])
		authored, err := stores.Posts.ListPostsByUser(ctx, DemoIdentity(pair[1]))
		if err != nil {
			return summary, fmt.Errorf("list posts of %s: %w", pair[1], err)
		}
		for _, post := range authored {
			if post.LikedBy(liker) {
				continue
			}
			if _, err := stores.Posts.LikePost(ctx, liker, post.ID); err != nil {
				return summary, fmt.Errorf("like post %d: %w", post.ID, err)
			}
			summary.Likes++
		}
	}
	return summary, nil
}
