package archive

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mse_backend/services/marketdata"
)

// Archive keeps raw fetched series in MongoDB for offline analysis. It
// is strictly optional: when MONGODB_URI is unset or the connection
// fails, every method is a no-op and the rest of the system runs
// unaffected.
type Archive struct {
	collection *mongo.Collection
}

type seriesDocument struct {
	Symbol      string    `bson:"symbol"`
	TimeRange   string    `bson:"time_range"`
	Source      string    `bson:"source"`
	PointCount  int       `bson:"point_count"`
	Points      []bson.M  `bson:"points"`
	RetrievedAt time.Time `bson:"retrieved_at"`
	ArchivedAt  time.Time `bson:"archived_at"`
}

// Connect opens the archive. An empty URI disables it silently; a
// connection failure disables it with a warning.
func Connect(uri string) *Archive {
	if uri == "" {
		return &Archive{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		log.Printf("MongoDB archive unavailable, continuing without it: %v", err)
		return &Archive{}
	}
	if err := client.Ping(ctx, nil); err != nil {
		log.Printf("MongoDB archive unreachable, continuing without it: %v", err)
		return &Archive{}
	}

	log.Println("MongoDB archive connected")
	return &Archive{collection: client.Database("mse_archive").Collection("raw_series")}
}

// Enabled reports whether the archive has a live collection behind it.
func (a *Archive) Enabled() bool {
	return a != nil && a.collection != nil
}

// StoreSeries archives a fetched series. Fire-and-forget: failures are
// logged and never propagate to the fetch path.
func (a *Archive) StoreSeries(series *marketdata.Series) {
	if !a.Enabled() || series == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		doc := seriesDocument{
			Symbol:      series.Symbol,
			TimeRange:   string(series.TimeRange),
			Source:      series.Source,
			PointCount:  len(series.Points),
			Points:      make([]bson.M, 0, len(series.Points)),
			RetrievedAt: series.RetrievedAt,
			ArchivedAt:  time.Now(),
		}
		for _, p := range series.Points {
			doc.Points = append(doc.Points, bson.M{
				"date":     p.Date,
				"open":     p.Open.String(),
				"high":     p.High.String(),
				"low":      p.Low.String(),
				"close":    p.Close.String(),
				"volume":   p.Volume,
				"turnover": p.Turnover.String(),
			})
		}
		if _, err := a.collection.InsertOne(ctx, doc); err != nil {
			log.Printf("Failed to archive series %s %s: %v", series.Symbol, series.TimeRange, err)
		}
	}()
}

// RecentCount returns how many series documents were archived in the
// last 24 hours, for the operator status endpoint.
func (a *Archive) RecentCount() int64 {
	if !a.Enabled() {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := a.collection.CountDocuments(ctx, bson.M{
		"archived_at": bson.M{"$gte": time.Now().Add(-24 * time.Hour)},
	})
	if err != nil {
		log.Printf("Failed to count archived series: %v", err)
		return 0
	}
	return n
}
