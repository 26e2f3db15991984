package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
)

// ec2API is the subset of the EC2 client used by EC2Fleet.
type ec2API interface {
	ec2.DescribeInstancesAPIClient
	ec2.DescribeVolumesAPIClient
	ec2.DescribeSnapshotsAPIClient
	CreateSnapshot(ctx context.Context, params *ec2.CreateSnapshotInput, optFns ...func(*ec2.Options)) (*ec2.CreateSnapshotOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	RebootInstances(ctx context.Context, params *ec2.RebootInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RebootInstancesOutput, error)
}

// EC2Options configures the session and waiters of an EC2Fleet.
type EC2Options struct {
	Profile      string
	Region       string
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// EC2Fleet wraps the AWS SDK EC2 client.
type EC2Fleet struct {
	c    ec2API
	opts EC2Options
}

// ConnectEC2 resolves credentials and region from the shared AWS config
// (optionally a named profile) and returns a fleet bound to that region.
func ConnectEC2(ctx context.Context, opts EC2Options) (*EC2Fleet, error) {
	var load []func(*awsconfig.LoadOptions) error
	if opts.Profile != "" {
		load = append(load, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	if opts.Region != "" {
		load = append(load, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return newEC2Fleet(ec2.NewFromConfig(cfg), opts), nil
}

func newEC2Fleet(c ec2API, opts EC2Options) *EC2Fleet {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	return &EC2Fleet{c: c, opts: opts}
}

func (e *EC2Fleet) Instances(ctx context.Context, sel Selector) ([]Instance, error) {
	in := &ec2.DescribeInstancesInput{InstanceIds: sel.InstanceIDs}
	for k, v := range sel.Tags {
		in.Filters = append(in.Filters, ec2types.Filter{Name: aws.String("tag:" + k), Values: []string{v}})
	}
	var out []Instance
	p := ec2.NewDescribeInstancesPaginator(e.c, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, clientError("DescribeInstances", "", err)
		}
		for _, r := range page.Reservations {
			for _, ri := range r.Instances {
				inst := toInstance(ri)
				vols, err := e.volumes(ctx, ri)
				if err != nil {
					return nil, err
				}
				inst.Volumes = vols
				out = append(out, inst)
			}
		}
	}
	return out, nil
}

// volumes returns the EBS volumes attached to ri in block-device order.
func (e *EC2Fleet) volumes(ctx context.Context, ri ec2types.Instance) ([]Volume, error) {
	id := aws.ToString(ri.InstanceId)
	order := map[string]int{}
	for i, m := range ri.BlockDeviceMappings {
		if m.Ebs != nil {
			order[aws.ToString(m.Ebs.VolumeId)] = i
		}
	}
	in := &ec2.DescribeVolumesInput{
		Filters: []ec2types.Filter{{Name: aws.String("attachment.instance-id"), Values: []string{id}}},
	}
	var out []Volume
	p := ec2.NewDescribeVolumesPaginator(e.c, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, clientError("DescribeVolumes", id, err)
		}
		for _, v := range page.Volumes {
			vol := Volume{
				ID:        aws.ToString(v.VolumeId),
				SizeGiB:   int(aws.ToInt32(v.Size)),
				Encrypted: aws.ToBool(v.Encrypted),
				State:     string(v.State),
			}
			snaps, err := e.snapshots(ctx, vol.ID)
			if err != nil {
				return nil, err
			}
			vol.Snapshots = snaps
			out = append(out, vol)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, iok := order[out[i].ID]
		oj, jok := order[out[j].ID]
		if iok != jok {
			return iok
		}
		return oi < oj
	})
	return out, nil
}

// snapshots lists the account's own snapshots of a volume, most recent first.
func (e *EC2Fleet) snapshots(ctx context.Context, volumeID string) ([]Snapshot, error) {
	in := &ec2.DescribeSnapshotsInput{
		OwnerIds: []string{"self"},
		Filters:  []ec2types.Filter{{Name: aws.String("volume-id"), Values: []string{volumeID}}},
	}
	var out []Snapshot
	p := ec2.NewDescribeSnapshotsPaginator(e.c, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, clientError("DescribeSnapshots", volumeID, err)
		}
		for _, s := range page.Snapshots {
			out = append(out, Snapshot{
				ID:        aws.ToString(s.SnapshotId),
				VolumeID:  aws.ToString(s.VolumeId),
				State:     SnapshotState(s.State),
				Progress:  aws.ToString(s.Progress),
				StartTime: aws.ToTime(s.StartTime).UTC(),
			})
		}
	}
	// DescribeSnapshots makes no ordering promise.
	SortSnapshots(out)
	return out, nil
}

func (e *EC2Fleet) CreateSnapshot(ctx context.Context, volumeID string, opts SnapshotOptions) (Snapshot, error) {
	in := &ec2.CreateSnapshotInput{VolumeId: aws.String(volumeID)}
	if opts.Description != "" {
		in.Description = aws.String(opts.Description)
	}
	if len(opts.Tags) > 0 {
		in.TagSpecifications = []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeSnapshot,
			Tags:         toTags(opts.Tags),
		}}
	}
	res, err := e.c.CreateSnapshot(ctx, in)
	if err != nil {
		return Snapshot{}, clientError("CreateSnapshot", volumeID, err)
	}
	return Snapshot{
		ID:        aws.ToString(res.SnapshotId),
		VolumeID:  volumeID,
		State:     SnapshotState(res.State),
		Progress:  aws.ToString(res.Progress),
		StartTime: aws.ToTime(res.StartTime).UTC(),
	}, nil
}

func (e *EC2Fleet) StopInstance(ctx context.Context, id string) error {
	_, err := e.c.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{id}})
	return clientError("StopInstances", id, err)
}

func (e *EC2Fleet) StartInstance(ctx context.Context, id string) error {
	_, err := e.c.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{id}})
	return clientError("StartInstances", id, err)
}

func (e *EC2Fleet) RebootInstance(ctx context.Context, id string) error {
	_, err := e.c.RebootInstances(ctx, &ec2.RebootInstancesInput{InstanceIds: []string{id}})
	return clientError("RebootInstances", id, err)
}

func (e *EC2Fleet) WaitUntilStopped(ctx context.Context, id string) error {
	w := ec2.NewInstanceStoppedWaiter(e.c, func(o *ec2.InstanceStoppedWaiterOptions) {
		o.MinDelay = e.opts.PollInterval
		o.MaxDelay = e.opts.PollInterval
	})
	err := w.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, e.opts.WaitTimeout)
	return waitError("WaitUntilStopped", id, err)
}

func (e *EC2Fleet) WaitUntilRunning(ctx context.Context, id string) error {
	w := ec2.NewInstanceRunningWaiter(e.c, func(o *ec2.InstanceRunningWaiterOptions) {
		o.MinDelay = e.opts.PollInterval
		o.MaxDelay = e.opts.PollInterval
	})
	err := w.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{id}}, e.opts.WaitTimeout)
	return waitError("WaitUntilRunning", id, err)
}

func toInstance(ri ec2types.Instance) Instance {
	inst := Instance{
		ID:        aws.ToString(ri.InstanceId),
		Type:      string(ri.InstanceType),
		PublicDNS: aws.ToString(ri.PublicDnsName),
		Tags:      map[string]string{},
	}
	if ri.Placement != nil {
		inst.Zone = aws.ToString(ri.Placement.AvailabilityZone)
	}
	if ri.State != nil {
		inst.State = RunState(ri.State.Name)
	}
	for _, t := range ri.Tags {
		inst.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return inst
}

func toTags(m map[string]string) []ec2types.Tag {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make([]ec2types.Tag, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, ec2types.Tag{Key: aws.String(k), Value: aws.String(m[k])})
	}
	return tags
}

// clientError converts an SDK error into a *ClientError. nil stays nil.
func clientError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	ce := &ClientError{Op: op, Resource: resource, Code: CodeUnknown, Message: err.Error(), Cause: err}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		ce.Code = ae.ErrorCode()
		ce.Message = ae.ErrorMessage()
	}
	return ce
}

// waitError is clientError for waiters, which report an exhausted deadline
// as a plain error rather than an API error.
func waitError(op, resource string, err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return clientError(op, resource, err)
	}
	return &ClientError{Op: op, Resource: resource, Code: CodeWaitTimeout, Message: err.Error(), Cause: err}
}
