package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"go.pilab.hu/sentinel/domain"
)

// OperatorRole is the user role that receives security alerts.
const OperatorRole = "platform_admin"

// OperatorDirectoryMongo reads alert recipients from the users collection.
// The engine never writes user records; the directory is an external
// collaborator it only reads from.
type OperatorDirectoryMongo struct {
	collection *mongo.Collection
}

func NewOperatorDirectoryMongo(db *mongo.Database) *OperatorDirectoryMongo {
	return &OperatorDirectoryMongo{collection: db.Collection(UsersCollection)}
}

func (d *OperatorDirectoryMongo) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	cursor, err := d.collection.Find(ctx, bson.M{"role": OperatorRole})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var operators []domain.Operator
	if err := cursor.All(ctx, &operators); err != nil {
		return nil, err
	}
	return operators, nil
}
