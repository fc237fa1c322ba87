// Package jgit hosts git repositories for Jupiter addresses, keeping the
// durable copy of every repository as a snapshot in a blob store.
//
// A repository lives at /{address}/{repo}.git. Clients authenticate with
// HTTP basic auth; the password is the passphrase that controls the address
// (the username is ignored). A fetch restores the working copy from its
// snapshot when it is not on disk; a push stores a fresh snapshot once git
// has accepted the pack and then drops the working copy.
//
// Basic usage:
//
//	blobs, _ := jgit.OpenStore(ctx, "s3://bucket/jgit?region=us-east-1", 4)
//	srv, _ := jgit.NewServer(
//	    jgit.WithRootDir("/var/lib/jgit"),
//	    jgit.WithStore(blobs),
//	    jgit.WithDeriver(jgit.NewDeriver("", nil)),
//	)
//	go srv.Run(ctx)       // removes evicted working copies
//	http.ListenAndServe(":8080", srv)
//
// Push results can be observed:
//
//	jgit.WithObserver(func(res jgit.PushResult) {
//	    if res.Accepted && !res.Persisted {
//	        log.Printf("push to %s not stored: %v", res.Handle, res.Err)
//	    }
//	})
package jgit
