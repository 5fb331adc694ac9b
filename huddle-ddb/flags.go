package huddleddb

import (
	huddlecli "github.com/huddle-events/huddle-core/huddle-cli"
	"github.com/urfave/cli/v2"
)

var DDBOpts struct {
	DAXCluster string
	Endpoint   string
	Region     string
	TableName  string
}

var DAXClusterFlag = huddlecli.StringFlag("dax-cluster", "The DAX cluster to connect to", &DDBOpts.DAXCluster)
var EndpointFlag = huddlecli.StringFlag("dynamodb-endpoint", "Override the DynamoDB endpoint, e.g. for dynamodb-local", &DDBOpts.Endpoint)
var RegionFlag = huddlecli.StringFlag("dax-region", "The region of the DAX cluster", &DDBOpts.Region, "us-east-2")
var TableNameFlag = huddlecli.StringFlag("table-name", "The table name to read streams from", &DDBOpts.TableName)

var DDBFlags = []cli.Flag{
	DAXClusterFlag,
	EndpointFlag,
	RegionFlag,
	TableNameFlag,
}
