// Package mongo connects to MongoDB for the document session backend.
//
// Configuration comes from MONGODB_* environment variables (see Config).
// Connect retries until the deployment answers a ping; Healthcheck exposes
// the same ping for readiness probes.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//	client, err := mongo.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Disconnect(ctx)
//	coll := client.Database(cfg.Database).Collection(cfg.Collection)
//	store := mongostore.New(coll)
package mongo
