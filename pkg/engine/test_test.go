package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestValidatesViaStateCheck(t *testing.T) {
	e, session := vpcStack(t,
		fakeStep{result: dataResult(map[string]string{"count": "1"})},
		fakeStep{result: dataResult(map[string]string{"vpc_id": "vpc-123"})},
	)

	result, err := e.Test(context.Background(), TestOptions{})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"vpc_id": "vpc-123"}, result.Exports)

	calls := serverCalls(session)
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "SELECT COUNT(*)")
	assert.Contains(t, calls[1], "SELECT vpc_id")
}

func TestTestFailsWhenStateCheckMisses(t *testing.T) {
	e, session := vpcStack(t,
		fakeStep{result: dataResult(map[string]string{"count": "0"})},
	)

	_, err := e.Test(context.Background(), TestOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test failed for example_vpc")
	assert.Len(t, serverCalls(session), 1)
}

func TestTestSkipValidationStillExports(t *testing.T) {
	manifestYAML := `
name: demo-stack
providers:
  - aws
resources:
  - name: example_vpc
    skip_validation: true
    props:
      - name: vpc_cidr_block
        value: "10.0.0.0/16"
    exports:
      - vpc_id
`
	dir := writeStack(t, manifestYAML, map[string]string{"example_vpc.iql": vpcQueries})
	session := newSession(
		fakeStep{result: dataResult(map[string]string{"vpc_id": "vpc-123"})},
	)
	e := newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev"})

	result, err := e.Test(context.Background(), TestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "vpc-123", result.Exports["vpc_id"])

	// No statecheck is dispatched, only the exports query.
	calls := serverCalls(session)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "SELECT vpc_id")
}

func TestTestExportsProxyReusesResult(t *testing.T) {
	dir := writeStack(t, vpcManifest, map[string]string{"example_vpc.iql": proxyQueries})
	session := newSession(
		fakeStep{result: dataResult(map[string]string{"vpc_id": "vpc-123"})},
	)
	e := newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev"})

	result, err := e.Test(context.Background(), TestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "vpc-123", result.Exports["vpc_id"])
	assert.Len(t, serverCalls(session), 1)
}

func TestTestExportsProxyFailsWhenEmpty(t *testing.T) {
	dir := writeStack(t, vpcManifest, map[string]string{"example_vpc.iql": proxyQueries})
	session := newSession(
		fakeStep{result: dataResult()},
		fakeStep{result: dataResult()},
	)
	e := newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev"})

	_, err := e.Test(context.Background(), TestOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test failed for example_vpc")
	assert.Len(t, serverCalls(session), 2)
}

func TestTestQueryKindInlineSQL(t *testing.T) {
	manifestYAML := `
name: demo-stack
providers:
  - aws
resources:
  - name: main_route_table
    type: query
    sql: "SELECT route_table_id FROM aws.ec2.route_tables WHERE vpc_id = 'vpc-123'"
    exports:
      - route_table_id
`
	dir := writeStack(t, manifestYAML, nil)
	session := newSession(
		fakeStep{result: dataResult(map[string]string{"route_table_id": "rtb-99"})},
	)
	e := newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev"})

	result, err := e.Test(context.Background(), TestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "rtb-99", result.Exports["route_table_id"])
	assert.Len(t, serverCalls(session), 1)
}

func TestTestCommandKindIsSkipped(t *testing.T) {
	manifestYAML := `
name: demo-stack
providers:
  - aws
resources:
  - name: tag_cleanup
    type: command
    sql: "DELETE FROM aws.ec2.tags WHERE key = 'Temp'"
`
	dir := writeStack(t, manifestYAML, nil)
	session := newSession()
	e := newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev"})

	_, err := e.Test(context.Background(), TestOptions{})
	require.NoError(t, err)
	assert.Empty(t, serverCalls(session))
}

func TestTestScriptKindIsSkipped(t *testing.T) {
	manifestYAML := `
name: demo-stack
providers:
  - aws
resources:
  - name: build_info
    type: script
    run: "exit 1"
`
	dir := writeStack(t, manifestYAML, nil)
	session := newSession()
	e := newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev"})

	// The script is not executed during a test run, so its failing
	// exit status never surfaces.
	_, err := e.Test(context.Background(), TestOptions{})
	require.NoError(t, err)
	assert.Empty(t, serverCalls(session))
}

func TestTestMissingValidationAnchorFails(t *testing.T) {
	queries := `
/*+ exists */
SELECT COUNT(*) as count FROM aws.ec2.vpcs WHERE cidr_block = '{{ vpc_cidr_block }}'

/*+ create */
INSERT INTO aws.ec2.vpcs (CidrBlock) SELECT '{{ vpc_cidr_block }}'

/*+ delete */
DELETE FROM aws.ec2.vpcs WHERE cidr_block = '{{ vpc_cidr_block }}'
`
	dir := writeStack(t, vpcManifest, map[string]string{"example_vpc.iql": queries})
	session := newSession()
	e := newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev"})

	_, err := e.Test(context.Background(), TestOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iql file must include either 'statecheck' or 'exports' anchor for validation")
}

func TestTestDryRunDispatchesNothing(t *testing.T) {
	dir := writeStack(t, vpcManifest, map[string]string{"example_vpc.iql": vpcQueries})
	session := &fakeSession{}
	e := newTestEngine(t, session, Options{StackDir: dir, StackEnv: "dev", DryRun: true})

	result, err := e.Test(context.Background(), TestOptions{})
	require.NoError(t, err)
	assert.Empty(t, session.calls)
	assert.Equal(t, map[string]string{"vpc_id": "<evaluated>"}, result.Exports)
}
