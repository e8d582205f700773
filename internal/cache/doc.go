// Package cache provides the authorization decision cache.
//
// Two backends implement Cache: an in-process map bounded by entry count
// and a Redis backend for sharing decisions across replicas. Both bound
// every entry by a TTL; a missing or expired entry always means
// "evaluate again", never "deny".
//
// An InvalidationWatcher drops every cached decision whenever the policy
// store reports a new version.
//
//	c, err := cache.New(ctx, cfg.Authorization.Cache, logger, metrics)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	key := cache.Key(cache.KeyInput{Subject: "u1", Action: "GetProduct", ResourceType: "Product", ResourceID: "42"})
//	if e, ok := c.Get(ctx, key); ok {
//	    return e.Verdict
//	}
package cache
